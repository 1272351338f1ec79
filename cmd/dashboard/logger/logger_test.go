package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "json", "warn")

	log.Info("hidden")
	log.Warn("forecast truncated", "requested", 7, "produced", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"forecast truncated"`) || !strings.Contains(out, `"produced":3`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	newWithWriter(&buf, "text", "info").Info("history loaded", "rows", 42)

	if !strings.Contains(buf.String(), "msg=\"history loaded\" rows=42") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
