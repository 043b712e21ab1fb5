package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, want := range tests {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", raw, got, want)
		}
	}
}

func TestNewWritesRotatingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: dir}})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	log.Info("turn finished", zap.String("session_id", "abc"))
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, defaultFileName))
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"abc"`) {
		t.Fatalf("log file=%s, want session_id field", data)
	}
}

func TestNewWriterHonorsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(Config{Level: "warn", Format: "console"}, &buf)
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output=%q, want only warn line", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Fatalf("output=%q, want console level", out)
	}
}
