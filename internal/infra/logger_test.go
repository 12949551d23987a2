package infra

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProductionEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production")
	logger.Debug().Msg("hidden")
	logger.Info().Str("taskId", "task_1").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "visible" || entry["taskId"] != "task_1" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry["service"] != "adgenerator" {
		t.Fatalf("service field missing: %#v", entry)
	}
}

func TestNewLoggerDevelopmentIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "development")
	logger.Debug().Msg("debug line")
	if !bytes.Contains(buf.Bytes(), []byte("debug line")) {
		t.Fatalf("debug output missing: %q", buf.String())
	}
}
