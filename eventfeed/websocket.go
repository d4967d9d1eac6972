package eventfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sheikhcoders/opensheikh/logging"
)

// WebSocketSource reads event envelopes, one JSON object per text frame,
// from a WebSocket endpoint and publishes them.
type WebSocketSource struct {
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger
	URL    string
}

// Stream dials the endpoint and publishes every decoded frame until ctx is
// cancelled or the server closes the connection. A normal close or
// cancellation returns nil. Frames that do not decode are logged and
// skipped. Nothing is resent on a later Stream call.
func (s *WebSocketSource) Stream(ctx context.Context, pub Publisher) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, s.URL, s.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", s.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", s.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event frame: %w", err)
		}
		logger.Log(ctx, logging.LevelTrace, "event frame", "frame", string(data))

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			if err == nil {
				err = errors.New("missing type")
			}
			logger.Warn("skipping undecodable event frame", "error", err)
			continue
		}
		if err := pub.Publish(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
	}
}
