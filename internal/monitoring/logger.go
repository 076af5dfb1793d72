// Package monitoring implements C6: labeled time-series metrics with
// retention, threshold alerting with cooldown, structured logs with
// correlation IDs and PII redaction, and nested trace spans. The package
// layout mirrors the teacher's monitoring package file-for-file
// (logger.go / tracer.go / alerts.go / prometheus.go / runtime.go),
// retargeted from trading events to transform-engine events.
package monitoring

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents logging severity.
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
	FATAL LogLevel = "FATAL"
)

var levelPriority = map[LogLevel]int{DEBUG: 0, INFO: 1, WARN: 2, ERROR: 3, FATAL: 4}

// LogEntry is a structured log record (spec.md §3).
type LogEntry struct {
	Timestamp      string                 `json:"timestamp"`
	Level          LogLevel               `json:"level"`
	Service        string                 `json:"service"`
	Message        string                 `json:"message"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	OperationType  string                 `json:"operation_type,omitempty"`
	OperationID    string                 `json:"operation_id,omitempty"`
	SpanID         string                 `json:"span_id,omitempty"`
	TraceID        string                 `json:"trace_id,omitempty"`
	StructuredData map[string]any         `json:"structured_data,omitempty"`
	Sanitized      bool                   `json:"sanitized"`
	Error          string                 `json:"error,omitempty"`
	Source         string                 `json:"source,omitempty"`
}

// Logger provides structured JSON logging with PII redaction and a bounded
// retained-entry buffer for query (spec.md §4.6 StructuredLogger).
type Logger struct {
	serviceName string
	output      io.Writer
	minLevel    LogLevel
	piiEnabled  bool

	mu      sync.Mutex
	entries []LogEntry
	maxKept int
}

// NewLogger creates a new structured logger for serviceName.
func NewLogger(serviceName string) *Logger {
	return &Logger{
		serviceName: serviceName,
		output:      os.Stdout,
		minLevel:    INFO,
		piiEnabled:  true,
		maxKept:     10000,
	}
}

// SetOutput sets the logger's output writer.
func (l *Logger) SetOutput(w io.Writer) { l.output = w }

// SetMinLevel sets the minimum level that will be emitted.
func (l *Logger) SetMinLevel(level LogLevel) { l.minLevel = level }

// SetPIIDetection toggles PII scanning/redaction of messages and fields.
func (l *Logger) SetPIIDetection(enabled bool) { l.piiEnabled = enabled }

func (l *Logger) shouldLog(level LogLevel) bool {
	return levelPriority[level] >= levelPriority[l.minLevel]
}

// logOptions carries the correlation/trace context for one call.
type logOptions struct {
	correlationID string
	operationType string
	operationID   string
	spanID        string
	traceID       string
}

func (l *Logger) log(level LogLevel, message string, fields map[string]any, err error, opts logOptions) LogEntry {
	sanitized := false
	if l.piiEnabled {
		message, fields, sanitized = redact(message, fields)
	}

	if opts.correlationID == "" {
		opts.correlationID = uuid.NewString()
	}

	entry := LogEntry{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Level:          level,
		Service:        l.serviceName,
		Message:        message,
		CorrelationID:  opts.correlationID,
		OperationType:  opts.operationType,
		OperationID:    opts.operationID,
		SpanID:         opts.spanID,
		TraceID:        opts.traceID,
		StructuredData: fields,
		Sanitized:      sanitized,
	}

	if err != nil {
		entry.Error = err.Error()
	}
	if level == ERROR || level == FATAL {
		if _, file, line, ok := runtime.Caller(3); ok {
			entry.Source = fmt.Sprintf("%s:%d", file, line)
		}
	}

	if !l.shouldLog(level) {
		l.keep(entry)
		return entry
	}

	data, merr := json.Marshal(entry)
	if merr != nil {
		fmt.Fprintf(l.output, "[%s] %s: %s (marshal error: %v)\n", entry.Timestamp, level, message, merr)
	} else {
		fmt.Fprintln(l.output, string(data))
	}

	l.keep(entry)

	if level == FATAL {
		os.Exit(1)
	}
	return entry
}

func (l *Logger) keep(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxKept {
		l.entries = l.entries[len(l.entries)-l.maxKept:]
	}
}

// Entries returns a snapshot of retained log entries, most recent last.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Debug/Info/Warn/Error/Fatal are the plain (no correlation context) entry points.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.log(DEBUG, message, fields, nil, logOptions{})
}
func (l *Logger) Info(message string, fields map[string]any) {
	l.log(INFO, message, fields, nil, logOptions{})
}
func (l *Logger) Warn(message string, fields map[string]any) {
	l.log(WARN, message, fields, nil, logOptions{})
}
func (l *Logger) Error(message string, err error, fields map[string]any) {
	l.log(ERROR, message, fields, err, logOptions{})
}
func (l *Logger) Fatal(message string, err error, fields map[string]any) {
	l.log(FATAL, message, fields, err, logOptions{})
}

// WithContext logs with a correlation/trace/span/operation context attached.
func (l *Logger) WithContext(level LogLevel, message string, fields map[string]any, err error, ctx LogContext) LogEntry {
	return l.log(level, message, fields, err, logOptions{
		correlationID: ctx.CorrelationID,
		operationType: ctx.OperationType,
		operationID:   ctx.OperationID,
		spanID:        ctx.SpanID,
		traceID:       ctx.TraceID,
	})
}

// LogContext carries correlation/operation/trace identifiers for one logical operation.
type LogContext struct {
	CorrelationID string
	OperationType string
	OperationID   string
	SpanID        string
	TraceID       string
}

// TransformLog logs a transform-operation event — the domain-specific
// convenience method, grounded on the teacher's OrderLog/TradeLog pattern.
func (l *Logger) TransformLog(table string, mode string, status string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["table"] = table
	fields["mode"] = mode
	fields["status"] = status
	fields["event_type"] = "transform"
	l.Info(fmt.Sprintf("Transform %s: %s (%s)", status, table, mode), fields)
}

// WatermarkLog logs a watermark read/write event.
func (l *Logger) WatermarkLog(table, column string, value *time.Time, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["table"] = table
	fields["time_column"] = column
	if value != nil {
		fields["watermark"] = value.Format(time.RFC3339)
	}
	fields["event_type"] = "watermark"
	l.Info(fmt.Sprintf("Watermark updated for %s.%s", table, column), fields)
}

// QualityLog logs a data-quality validation outcome.
func (l *Logger) QualityLog(table string, score float64, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["table"] = table
	fields["quality_score"] = score
	fields["event_type"] = "quality"
	level := INFO
	if score < 0.7 {
		level = WARN
	}
	l.log(level, fmt.Sprintf("Quality profile for %s: score %.2f", table, score), fields, nil, logOptions{})
}

var globalLogger = NewLogger("transform-engine")

// GetLogger returns the global logger instance.
func GetLogger() *Logger { return globalLogger }

// SetGlobalLogger replaces the global logger instance.
func SetGlobalLogger(l *Logger) { globalLogger = l }
