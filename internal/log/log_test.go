package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" DEBUG ", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})
	l.Info("tick")
	l.Warn("camera lost", "device", "0")

	out := buf.String()
	if strings.Contains(out, "tick") {
		t.Errorf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, "camera lost") || !strings.Contains(out, "device=0") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "JSON", Output: &buf}).Info("locked", "bad_for", "11s")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["msg"] != "locked" || rec["bad_for"] != "11s" {
		t.Errorf("record = %v", rec)
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Output: &buf})
	Error("service down")

	if !strings.Contains(buf.String(), "service down") {
		t.Errorf("global logger not replaced: %q", buf.String())
	}
	if L() != slog.Default() {
		t.Error("Init should set slog's default logger")
	}
}

func TestAutoFormatOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "auto", Output: &buf}).Info("watching")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto format off a terminal should be JSON, got %q", buf.String())
	}
}
