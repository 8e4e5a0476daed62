package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestTextLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("queue_file_rejected", "file", "a.exe")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info record filtered, got %q", out)
	}
	if !strings.Contains(out, "queue_file_rejected") || !strings.Contains(out, "file=a.exe") {
		t.Fatalf("unexpected output: %q", out)
	}
}
