package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/httpkit"
)

// maxAttempts is the total number of tries per completion request.
// There is no delay between attempts; transient API hiccups either
// clear immediately or the turn aborts.
const maxAttempts = 3

const defaultBaseURL = "https://api.openai.com/v1"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRecorder registers a usage recorder invoked after every
// successful completion.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithBaseURL overrides the API base URL, for compatible providers and
// test servers.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient creates a chat completion client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpkit.NewClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Complete sends a chat completion request, retrying up to maxAttempts
// times. On exhaustion it returns a *CompletionError wrapping the last
// failure.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &CompletionError{Model: req.Model, Err: err}
		}

		resp, err := c.complete(ctx, req)
		if err == nil {
			if c.recorder != nil {
				c.recorder.Record(ctx, resp.Model, resp.Usage)
			}
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("chat completion attempt failed",
			"model", req.Model,
			"attempt", attempt,
			"error", err,
		)
	}
	return nil, &CompletionError{Model: req.Model, Err: lastErr}
}

func (c *Client) complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completions request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(httpResp.Body, 4096)
		return nil, fmt.Errorf("chat completions returned %d: %s", httpResp.StatusCode, msg)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}
	return &resp, nil
}

// InfoQuery runs a single system+user exchange and returns the reply
// text. Used by tools that post-process API data through a cheap model.
func InfoQuery(ctx context.Context, c Completer, model, system, user string) (string, error) {
	resp, err := c.Complete(ctx, Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.First().Content, nil
}
