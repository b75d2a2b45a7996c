package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"article-pipeline/internal/logging"
)

func TestNewAutoUsesJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "auto", Output: &buf, Service: "queue-manager"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("job created", "job_id", "abc")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "queue-manager" || rec["job_id"] != "abc" {
		t.Fatalf("record: %v", rec)
	}
}

func TestNewTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "text", Level: "warn", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "k=v") {
		t.Fatalf("output: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseLevel(t *testing.T) {
	if logging.ParseLevel("DEBUG") != slog.LevelDebug || logging.ParseLevel("") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
