package eventfeed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/sheikhcoders/opensheikh/logging"
)

// Follow publishes the events already in the JSONL file at path and then
// keeps publishing lines appended to it until ctx is cancelled. A trailing
// line without newline is held back until it is completed.
func Follow(ctx context.Context, path string, pub Publisher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before the first read so appends in between are not missed.
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	t := &tailer{reader: bufio.NewReader(f), pub: pub, logger: logger}
	if err := t.drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logger.Info("followed file went away", "path", path)
				return nil
			}
			if ev.Has(fsnotify.Write) {
				if err := t.drain(ctx); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}

type tailer struct {
	reader  *bufio.Reader
	pub     Publisher
	logger  *slog.Logger
	partial []byte
}

// drain publishes every complete line currently readable.
func (t *tailer) drain(ctx context.Context) error {
	for {
		chunk, err := t.reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			t.partial = append(t.partial, chunk...)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}

		line := append(t.partial, chunk...)
		t.partial = nil
		t.logger.Log(ctx, logging.LevelTrace, "event line", "line", string(bytes.TrimSpace(line)))

		ev, ok, perr := ParseLine(line)
		if perr != nil {
			t.logger.Warn("skipping event line", "error", perr)
			continue
		}
		if !ok {
			continue
		}
		if err := t.pub.Publish(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
	}
}
