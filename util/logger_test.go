package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.ErrorLevel},
		{0, zapcore.ErrorLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.verbosity); got != tt.want {
			t.Errorf("LevelFor(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, 2, FormatConsole)

	l.Errorw("e")
	l.Warnw("w")
	l.Infow("i")
	l.Debugw("d")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), output)
	}

	wantLevels := []string{"ERROR", "WARN", "INFO", "DEBUG"}
	for i, level := range wantLevels {
		if !strings.Contains(lines[i], level) {
			t.Errorf("line %d %q missing level %q", i, lines[i], level)
		}
	}
}

func TestLogger_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, 0, FormatConsole)

	l.Infow("should not appear")
	l.Debugw("should not appear")
	l.Errorw("always appears")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 {
		t.Errorf("expected 1 line in quiet mode, got %d:\n%s", len(lines), output)
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, 1, FormatJSON)

	l.Infow("share started", "user", "alice")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "share started" {
		t.Errorf("msg = %v, want %q", entry["msg"], "share started")
	}
	if entry["user"] != "alice" {
		t.Errorf("user = %v, want %q", entry["user"], "alice")
	}
}

func TestLogger_SetVerbosityPropagates(t *testing.T) {
	var buf bytes.Buffer
	root := NewLoggerTo(&buf, 0, FormatConsole)
	child := root.Named("control").With("session", "s1")

	child.Infow("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at error level, got %q", buf.String())
	}

	root.SetVerbosity(1)
	child.Infow("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("child logger did not pick up new level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "control") {
		t.Errorf("expected logger name in output, got %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	// Should not panic.
	l := NopLogger()
	l.Errorw("discarded", "k", 1)
	l.Named("x").With("a", "b").Infow("discarded")
}
