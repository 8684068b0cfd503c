// Package auth resolves bearer tokens to caller identities and applies the
// email allowlist.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskvault/internal/identity"
)

// ErrUnauthorized is returned when a token is missing or rejected.
var ErrUnauthorized = errors.New("unauthorized")

// DefaultTimeout bounds a single token lookup.
const DefaultTimeout = 15 * time.Second

// Authenticator resolves a bearer token to the caller it belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// GoTrue authenticates against a Supabase GoTrue server.
type GoTrue struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGoTrue creates a GoTrue authenticator. apiKey is sent as the apikey
// header on every lookup.
func NewGoTrue(baseURL, apiKey string) *GoTrue {
	return &GoTrue{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate looks the token up at /auth/v1/user.
func (g *GoTrue) Authenticate(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("user lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 500 {
			return identity.Identity{}, fmt.Errorf("user lookup: status %d", resp.StatusCode)
		}
		return identity.Identity{}, ErrUnauthorized
	}

	var u userResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return identity.Identity{}, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == "" {
		return identity.Identity{}, ErrUnauthorized
	}
	return identity.Identity{UserID: u.ID, Email: u.Email, Token: token}, nil
}

// AuthorizeURL returns the Google sign-in URL that redirects back to
// redirectTo.
func (g *GoTrue) AuthorizeURL(redirectTo string) string {
	return g.baseURL + "/auth/v1/authorize?provider=google&redirect_to=" + url.QueryEscape(redirectTo)
}

// StaticTokens authenticates from a fixed token table. It serves local
// deployments without a GoTrue server.
type StaticTokens map[string]identity.Identity

func (s StaticTokens) Authenticate(_ context.Context, token string) (identity.Identity, error) {
	id, ok := s[token]
	if !ok || token == "" {
		return identity.Identity{}, ErrUnauthorized
	}
	id.Token = token
	return id, nil
}

// Allowlist restricts access to a set of emails. An empty list admits
// everyone.
type Allowlist struct {
	emails map[string]bool
}

// NewAllowlist builds an allowlist, ignoring case and blank entries.
func NewAllowlist(emails []string) *Allowlist {
	a := &Allowlist{emails: make(map[string]bool, len(emails))}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			a.emails[e] = true
		}
	}
	return a
}

// Allows reports whether email may use the API.
func (a *Allowlist) Allows(email string) bool {
	if a == nil || len(a.emails) == 0 {
		return true
	}
	return a.emails[strings.ToLower(email)]
}
