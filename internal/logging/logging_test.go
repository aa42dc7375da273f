package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "debug", "json")
	l.Debug("hello", "mission_id", "m1")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"mission_id":"m1"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewWithLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWith(&buf, "warn", "text")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn missing: %q", buf.String())
	}
}

func TestParseLevelFallback(t *testing.T) {
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Fatalf("expected info fallback")
	}
	if ParseLevel("ERROR") != slog.LevelError {
		t.Fatalf("expected error level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard()
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("logger not retrieved from context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
}
