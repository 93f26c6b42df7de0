package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerRedactsAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json"})

	logger.Info(context.Background(), "calling provider", "auth", "sk-ant-"+strings.Repeat("a", 95))

	if strings.Contains(buf.String(), "sk-ant-") {
		t.Fatalf("expected API key to be redacted, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("expected redaction marker in output, got: %s", buf.String())
	}
}

func TestLoggerWithContextIncludesRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "json"})
	ctx := AddRunID(context.Background(), "run-123")

	logger.WithContext(ctx).Info(ctx, "run started")

	if !strings.Contains(buf.String(), "run-123") {
		t.Fatalf("expected run_id in log output, got: %s", buf.String())
	}
}

func TestLogLevelFromStringDefaultsToInfo(t *testing.T) {
	if LogLevelFromString("bogus") != LogLevelFromString("info") {
		t.Fatal("expected unrecognized level to default to info")
	}
}
