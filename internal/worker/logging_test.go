package worker

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		for _, format := range []string{"json", "text"} {
			logger := NewLogger(tt.level, format)
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("level %q format %s: expected %s enabled", tt.level, format, tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
				t.Errorf("level %q format %s: expected level below %s disabled", tt.level, format, tt.want)
			}
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var jsonOut, textOut bytes.Buffer
	newLogger(&jsonOut, "info", "JSON").Info("Worker starting", "concurrency", 5)
	newLogger(&textOut, "info", "text").Info("Worker starting", "concurrency", 5)

	if !strings.HasPrefix(jsonOut.String(), "{") || !strings.Contains(jsonOut.String(), `"concurrency":5`) {
		t.Errorf("expected JSON record, got %q", jsonOut.String())
	}
	if !strings.Contains(textOut.String(), "msg=\"Worker starting\" concurrency=5") {
		t.Errorf("expected text record, got %q", textOut.String())
	}
}

func TestParseLevelOffsets(t *testing.T) {
	if got := ParseLevel("warn+2"); got != slog.LevelWarn+2 {
		t.Errorf("expected WARN+2, got %s", got)
	}
	if got := ParseLevel(""); got != slog.LevelInfo {
		t.Errorf("expected empty level to fall back to info, got %s", got)
	}
}
