package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, VerbosityLevel(0))
	assert.Equal(t, slog.LevelDebug, VerbosityLevel(1))
	assert.Equal(t, LevelTrace, VerbosityLevel(2))
	assert.Equal(t, LevelTrace, VerbosityLevel(5))
}

func TestNew_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "frame", "type", "session.idle")
	logger.Debug("dbg")

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "type=session.idle")
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewFile(t *testing.T) {
	dir := t.TempDir()
	logger, path, cleanup := NewFile(dir, slog.LevelInfo)
	require.NotEmpty(t, path)
	logger.Info("hello file")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}
