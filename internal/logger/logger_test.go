package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_JSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := Init("debug", "json", &buf)

	ctx := WithContext(context.Background(), SessionIDKey, "sess-1")
	ctx = WithContext(ctx, ModeKey, "ideas")
	FromContext(ctx, base).Info("session started", "cost", 1)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "session started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", entry["session_id"])
	}
	if entry["mode"] != "ideas" {
		t.Errorf("mode = %v, want ideas", entry["mode"])
	}
	if _, ok := entry["generation_id"]; ok {
		t.Error("generation_id should be absent when not in context")
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := Init("warn", "text", &buf)

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; cutting at 2 would split it.
	got := Truncate("aé☕b", 2)
	if got != "a..." {
		t.Errorf("Truncate() = %q, want %q", got, "a...")
	}
	if !utf8.ValidString(got) {
		t.Errorf("Truncate() produced invalid UTF-8: %q", got)
	}
	if got := Truncate("aé☕b", 4); got != "aé..." {
		t.Errorf("Truncate() = %q, want %q", got, "aé...")
	}
}
