package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "info", Console: true, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	WithFileOperation(log, "raw/a.jpg", "compress").Info("done")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "level", "message", "file", "operation"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing key %q in %v", key, entry)
		}
	}
	if entry["message"] != "done" {
		t.Errorf("message = %v, want done", entry["message"])
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "error", Console: true, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info entry written at error level: %q", buf.String())
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "optimizer.log")
	log, err := NewLogger(LoggerConfig{Level: "info", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	WithOperation(log, "manifest").Info("written")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"operation":"manifest"`)) {
		t.Errorf("log file missing entry: %q", data)
	}
}
