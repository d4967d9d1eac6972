// Package logging builds the slog loggers used by the opensheikh commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LevelTrace is used for -vv: raw event frames and JSONL lines.
// slog.LevelDebug is -4; lower values are more verbose.
const LevelTrace slog.Level = slog.LevelDebug - 4 // -8

// New returns a text logger writing to w at level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}))
}

// replaceLevel prints LevelTrace as TRACE instead of DEBUG-4.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// VerbosityLevel maps a -v count to a level: 0 info, 1 debug, 2+ trace.
func VerbosityLevel(count int) slog.Level {
	switch {
	case count <= 0:
		return slog.LevelInfo
	case count == 1:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// NewFile creates a logger that writes to both stderr and a timestamped
// log file under dir. Returns the logger, the log file path, and a cleanup
// function to close the log file. If the file cannot be created the logger
// falls back to stderr only and the path is "".
func NewFile(dir string, level slog.Level) (*slog.Logger, string, func()) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return New(os.Stderr, level), "", func() {}
	}

	logFile := filepath.Join(dir, time.Now().Format("2006-01-02T15-04-05")+".log")
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return New(os.Stderr, level), "", func() {}
	}

	w := io.MultiWriter(os.Stderr, f)
	return New(w, level), logFile, func() { f.Close() }
}
