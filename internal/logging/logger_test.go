package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emiliopalmerini/elabgate/internal/config"
	"github.com/emiliopalmerini/elabgate/internal/logging"
)

func newFileLogger(t *testing.T, format, level string) (string, func(...any)) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{
		Format:      format,
		Level:       level,
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithRequestID(context.Background(), "req-123")
	ctx = logging.WithAccountID(ctx, 7)
	return logPath, func(args ...any) {
		logging.NewComponentLogger(logger, "relay").InfoContext(ctx, "experiment created", args...)
	}
}

func TestConsoleLoggerIncludesComponentAndContext(t *testing.T) {
	logPath, log := newFileLogger(t, "console", "info")
	log(logging.Int64(logging.FieldExperimentID, 42), logging.Error(errors.New("boom bang")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO relay: experiment created", "experiment_id=42", `error="boom bang"`, "request_id=req-123", "account_id=7"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Errorf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath, log := newFileLogger(t, "json", "info")
	log()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("decode json log: %v (%s)", err, content)
	}
	if entry["component"] != "relay" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("expected ts key")
	}
}

func TestLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", content)
	}
	if !strings.Contains(string(content), "WARN visible") {
		t.Errorf("expected warn message, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Dir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, "elabgate.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Errorf("expected message in log file, got %q", content)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewComponentLogger(nil, "web")
	if logger.Enabled(context.Background(), 0) {
		t.Fatal("nop logger should not be enabled")
	}
}
