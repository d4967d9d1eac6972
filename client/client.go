// Package client talks to the conversation server over HTTP: submitting a
// user turn and listing a session's messages for hydration.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/submit"
)

const maxErrorBody = 4096

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Body       string
	StatusCode int
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Client is a conversation server client.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a client for baseURL. A non-positive timeout disables the
// per-request timeout.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &http.Client{}
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  logger.With("component", "client"),
	}
}

// SendMessage submits a user turn and returns the server's initial
// representation of the reply.
func (c *Client) SendMessage(ctx context.Context, sessionID string, req submit.Request) (conversation.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("marshal request: %w", err)
	}

	var out wireMessage
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "message"), body, &out); err != nil {
		return conversation.Message{}, fmt.Errorf("send message: %w", err)
	}
	return out.toMessage(), nil
}

// Messages lists the messages of sessionID in server order.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	var out []wireMessage
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "message"), nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]conversation.Message, len(out))
	for i := range out {
		msgs[i] = out[i].toMessage()
	}
	return msgs, nil
}

func sessionPath(sessionID, rest string) string {
	return "/session/" + url.PathEscape(sessionID) + "/" + rest
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
