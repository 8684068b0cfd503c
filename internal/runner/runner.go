// Package runner proxies test runs to the external code runner service.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var (
	// ErrTimeout is returned when the runner does not answer in time.
	ErrTimeout = errors.New("test runner timed out")
	// ErrUnavailable is returned when the runner cannot be reached or
	// answers with an error status.
	ErrUnavailable = errors.New("test runner unavailable")
)

// DefaultTimeout bounds a single run.
const DefaultTimeout = 45 * time.Second

const maxResponseBytes = 16 << 20

// Response is the runner's reply, passed through to the caller verbatim.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client posts run requests to the runner.
type Client struct {
	url        string
	httpClient *http.Client
}

// New creates a client for the runner endpoint at url. A zero timeout
// selects DefaultTimeout.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Run forwards body, a JSON document, to the runner.
func (c *Client) Run(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Response{Status: resp.StatusCode, ContentType: ct, Body: data}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
