package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

// capture returns a logger writing JSON into buf.
func capture(buf *bytes.Buffer, level string) *Logger {
	cfg := config.LoggingConfig{Level: level, Format: "json"}
	return &Logger{Logger: slog.New(newHandler(buf, cfg, "1.2.3"))}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	capture(&buf, "info").Info("frame received", "seq", 7)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["service"] != serviceName || e["version"] != "1.2.3" {
		t.Errorf("default fields = %v/%v", e["service"], e["version"])
	}
	if e["msg"] != "frame received" || e["seq"] != float64(7) {
		t.Errorf("entry = %v", e)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := capture(&buf, "warn")

	logger.Debug("parser byte")
	logger.Info("frame")
	logger.Warn("device lost")
	logger.Error("open failed")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (warn and error)", len(entries))
	}
	if entries[0]["msg"] != "device lost" || entries[1]["msg"] != "open failed" {
		t.Errorf("entries = %v", entries)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := capture(&buf, "info")
	child := parent.Component("journal")

	if child == parent {
		t.Fatal("Component() returned the parent logger")
	}

	child.Info("row written")
	parent.Info("bridge started")

	entries := decodeLines(t, &buf)
	if entries[0]["component"] != "journal" {
		t.Errorf("child component = %v, want journal", entries[0]["component"])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Error("parent entry gained a component field")
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "TEXT"}
	logger := &Logger{Logger: slog.New(newHandler(&buf, cfg, "dev"))}

	logger.Info("port opened", "path", "/dev/ttyACM0")

	out := buf.String()
	if !strings.Contains(out, "msg=\"port opened\"") || !strings.Contains(out, "path=/dev/ttyACM0") {
		t.Errorf("text output = %q", out)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	cfg := config.LoggingConfig{Level: "info", Format: "json", Output: "file", File: path}

	New(cfg, "1.0.0").Info("frame received", "seq", 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "frame received") || !strings.Contains(string(data), serviceName) {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_FileOutputFallsBack(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   filepath.Join(t.TempDir(), "missing", "dir", "bridge.log"),
	}

	if logger := New(cfg, "1.0.0"); logger == nil {
		t.Fatal("expected a logger when the log file cannot be opened")
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() = nil")
	}
}
