package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cinematic-bot/cinematic/internal/httpkit"
)

const defaultAPIBase = "https://discord.com/api/v10"

// Rest is a minimal Discord REST client covering what the bridge
// needs: sending replies, editing them in place, and fetching the
// message a reply targets.
type Rest struct {
	baseURL string
	token   string
	hc      *http.Client
	logger  *slog.Logger
}

// RestOption configures a Rest client.
type RestOption func(*Rest)

// WithRestBaseURL overrides the API base URL, mainly for tests.
func WithRestBaseURL(u string) RestOption {
	return func(r *Rest) { r.baseURL = strings.TrimRight(u, "/") }
}

// WithRestHTTPClient overrides the HTTP client.
func WithRestHTTPClient(hc *http.Client) RestOption {
	return func(r *Rest) { r.hc = hc }
}

// WithRestLogger sets the logger.
func WithRestLogger(l *slog.Logger) RestOption {
	return func(r *Rest) { r.logger = l }
}

// NewRest creates a Discord REST client authenticating with the given
// bot token.
func NewRest(token string, opts ...RestOption) *Rest {
	r := &Rest{
		baseURL: defaultAPIBase,
		token:   token,
		hc:      httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rest) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s",
			method, path, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CurrentUser fetches the bot's own user.
func (r *Rest) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := r.do(ctx, http.MethodGet, "/users/@me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMessage fetches a single message from a channel.
func (r *Rest) GetMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	var m Message
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := r.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateReply sends a message replying to replyToID and returns the
// created message.
func (r *Rest) CreateReply(ctx context.Context, channelID, replyToID, content string) (*Message, error) {
	payload := map[string]any{
		"content": content,
	}
	if replyToID != "" {
		payload["message_reference"] = MessageReference{MessageID: replyToID, ChannelID: channelID}
	}

	var m Message
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := r.do(ctx, http.MethodPost, path, payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessage replaces the content of an existing message.
func (r *Rest) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	payload := map[string]any{"content": content}
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	return r.do(ctx, http.MethodPatch, path, payload, nil)
}
