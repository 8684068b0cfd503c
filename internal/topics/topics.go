// Package topics asks a language model which programming topics fit a
// task. It talks to any OpenAI-compatible chat completion endpoint.
package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned when the model cannot be called or its reply
// cannot be read as a topic list.
var ErrUnavailable = errors.New("topic model unavailable")

// ErrTimeout is returned when the model does not answer within the
// configured timeout.
var ErrTimeout = errors.New("topic model timed out")

// Defaults target Gemini's OpenAI-compatible endpoint.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 30 * time.Second
)

// PossibleTopics is the vocabulary the model picks from.
var PossibleTopics = []string{
	"Array", "String", "Hash Table", "Dynamic Programming", "Math", "Sorting",
	"Greedy", "Depth-First Search", "Binary Search", "Database", "Matrix",
	"Tree", "Breadth-First Search", "Bit Manipulation", "Two Pointers",
	"Prefix Sum", "Heap (Priority Queue)", "Simulation", "Binary Tree",
	"Graph", "Stack", "Counting", "Sliding Window", "Design", "Enumeration",
	"Backtracking", "Union Find", "Linked List", "Number Theory", "Ordered Set",
	"Monotonic Stack", "Segment Tree", "Trie", "Combinatorics", "Bitmask",
	"Queue", "Divide and Conquer", "Recursion", "Geometry", "Binary Indexed Tree",
	"Memoization", "Hash Function", "Binary Search Tree", "Shortest Path",
	"String Matching", "Topological Sort", "Rolling Hash", "Game Theory",
	"Interactive", "Data Stream", "Monotonic Queue", "Brainteaser",
	"Doubly-Linked List", "Randomized", "Merge Sort", "Counting Sort",
	"Iterator", "Concurrency", "Probability and Statistics", "Quickselect",
	"Suffix Array", "Line Sweep", "Minimum Spanning Tree", "Bucket Sort",
	"Shell", "Reservoir Sampling", "Strongly Connected Component",
	"Eulerian Circuit", "Radix Sort", "Rejection Sampling", "Biconnected Component",
}

// Config selects the endpoint and model.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client suggests topics for a task.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a client. Without an API key every call fails with
// ErrUnavailable.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Client{model: cfg.Model}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("topic model API key not set, topic suggestions disabled")
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.client = openai.NewClientWithConfig(oc)
	return c
}

// Suggest returns the two or three topics the model considers most
// relevant to the problem and its solution.
func (c *Client) Suggest(ctx context.Context, problem, solution string) ([]string, error) {
	if c.client == nil {
		return nil, ErrUnavailable
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(problem, solution)},
		},
	})
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrUnavailable)
	}
	return parseTopics(resp.Choices[0].Message.Content)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func buildPrompt(problem, solution string) string {
	list, _ := json.MarshalIndent(PossibleTopics, "", "  ")
	var b strings.Builder
	b.WriteString("Analyze the following problem description and its solution code to identify the most relevant programming topics.\n")
	b.WriteString("From the provided list, please select the top 2 or 3 most applicable topics.\n\n")
	b.WriteString("Problem Prompt:\n")
	b.WriteString(problem)
	b.WriteString("\n\nSolution Code:\n```\n")
	b.WriteString(solution)
	b.WriteString("\n```\n\nHere is the list of possible topics to choose from:\n")
	b.Write(list)
	b.WriteString("\n\nReturn your answer as a JSON array of strings. For example: [\"Topic1\", \"Topic2\"]\n")
	return b.String()
}

// parseTopics reads a JSON array of strings, tolerating a markdown code
// fence around it.
func parseTopics(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	var topics []string
	if err := json.Unmarshal([]byte(text), &topics); err != nil {
		return nil, fmt.Errorf("%w: parse reply: %v", ErrUnavailable, err)
	}
	if topics == nil {
		return nil, fmt.Errorf("%w: reply is not a list", ErrUnavailable)
	}
	return topics, nil
}
