package monitoring

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerRedactsPII(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test-service")
	l.SetOutput(&buf)
	l.SetMinLevel(DEBUG)

	l.Info("contact reached at jane.doe@example.com", map[string]any{"note": "card 4111 1111 1111 1111"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if strings.Contains(entry.Message, "jane.doe@example.com") {
		t.Errorf("message still contains raw email: %q", entry.Message)
	}
	if !entry.Sanitized {
		t.Error("expected Sanitized=true when PII was redacted")
	}
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test-service")
	l.SetOutput(&buf)
	l.SetMinLevel(WARN)

	l.Debug("should not print", nil)
	l.Info("should not print either", nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output below min level, got %q", buf.String())
	}

	l.Warn("should print", nil)
	if buf.Len() == 0 {
		t.Error("expected output at min level")
	}
}

func TestLoggerKeepsEntriesEvenWhenBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test-service")
	l.SetOutput(&buf)
	l.SetMinLevel(ERROR)

	l.Info("quiet", nil)
	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 retained entry, got %d", len(entries))
	}
	if entries[0].Message != "quiet" {
		t.Errorf("unexpected retained message: %q", entries[0].Message)
	}
}

func TestWithContextPropagatesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test-service")
	l.SetOutput(&buf)
	l.SetMinLevel(DEBUG)

	entry := l.WithContext(INFO, "scoped", nil, nil, LogContext{CorrelationID: "abc123", TraceID: "trace1"})
	if entry.CorrelationID != "abc123" || entry.TraceID != "trace1" {
		t.Errorf("context not propagated: %+v", entry)
	}
}
