package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "info")

	logger.Info("backend_request", "operation", "upload", "bearer_token", "eyJhbGciOi", "Authorization", "Bearer abc")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" || entry["operation"] != "upload" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["bearer_token"] != redacted || entry["Authorization"] != redacted {
		t.Fatalf("expected tokens to be redacted: %v", entry)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "worker", "warn")

	logger.Info("compression_pass")
	logger.Warn("retry_attempt")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "retry_attempt") {
		t.Fatalf("expected only the warning, got %q", buf.String())
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got.String() != "INFO" {
		t.Fatalf("parseLevel(verbose) = %s", got)
	}
	if got := parseLevel(" Debug "); got.String() != "DEBUG" {
		t.Fatalf("parseLevel(Debug) = %s", got)
	}
}
