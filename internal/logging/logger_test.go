package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")
	logger.Info("parsed", "rows", 3)

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"rows":3`) {
		t.Errorf("json output = %q", out)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info entry written at warn level: %q", buf.String())
	}
}

func TestFromContext_Fields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "debug", "text"))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = WithSession(ctx, "sess-9")

	FromContext(ctx).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-1") {
		t.Errorf("missing request_id: %q", out)
	}
	if !strings.Contains(out, "session_id=sess-9") {
		t.Errorf("missing session_id: %q", out)
	}
}

func TestSessionID_Empty(t *testing.T) {
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID() = %q, want empty", got)
	}
}
