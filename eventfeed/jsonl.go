package eventfeed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/sheikhcoders/opensheikh/logging"
)

const maxLineSize = 10 * 1024 * 1024

// ParseLine decodes one JSONL line into an envelope. Blank lines return
// ok=false with no error.
func ParseLine(line []byte) (Event, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false, nil
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, false, fmt.Errorf("unmarshal event line: %w", err)
	}
	if ev.Type == "" {
		return Event{}, false, fmt.Errorf("event line without type")
	}
	return ev, true, nil
}

// ReadJSONL publishes every event in r, one envelope per line, and returns
// how many were published. Unparseable lines are logged and skipped.
func ReadJSONL(ctx context.Context, r io.Reader, pub Publisher, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		logger.Log(ctx, logging.LevelTrace, "event line", "line", lineNo, "raw", scanner.Text())
		ev, ok, err := ParseLine(scanner.Bytes())
		if err != nil {
			logger.Warn("skipping event line", "line", lineNo, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := pub.Publish(ctx, ev); err != nil {
			return n, fmt.Errorf("publish line %d: %w", lineNo, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("scan events: %w", err)
	}
	return n, nil
}

// WriteJSONL appends ev to w as one line.
func WriteJSONL(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
