package monitoring

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SpanStatus is the terminal status of a finished span.
type SpanStatus string

const (
	StatusOK        SpanStatus = "OK"
	StatusError     SpanStatus = "ERROR"
	StatusTimeout   SpanStatus = "TIMEOUT"
	StatusCancelled SpanStatus = "CANCELLED"
)

// SpanEvent is one timestamped event recorded within a span.
type SpanEvent struct {
	Timestamp time.Time
	Fields    map[string]any
}

// Span represents one unit of traced work (spec.md §3 TraceSpan). A span's
// parent is held by ID (ParentSpanID), never by pointer, so spans carry no
// cyclic parent back-pointers (spec.md §9).
type Span struct {
	SpanID       string
	TraceID      string
	ParentSpanID string
	Name         string
	OperationType string
	Start        time.Time
	End          time.Time
	Status       SpanStatus
	Attributes   map[string]any
	Tags         map[string]any
	Events       []SpanEvent

	mu sync.Mutex
}

// SetAttribute sets a single attribute on the span.
func (s *Span) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}
	s.Attributes[key] = value
}

// SetTag sets a single tag on the span.
func (s *Span) SetTag(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Tags == nil {
		s.Tags = map[string]any{}
	}
	s.Tags[key] = value
}

// AddEvent appends a timestamped event to the span.
func (s *Span) AddEvent(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, SpanEvent{Timestamp: time.Now(), Fields: fields})
}

// DurationMS returns the span's duration once finished.
func (s *Span) DurationMS() int64 {
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start).Milliseconds()
}

// Tracer manages active and completed spans for one service.
type Tracer struct {
	serviceName string

	mu        sync.Mutex
	active    map[string]*Span
	completed []*Span
	maxKept   int
}

// NewTracer creates a tracer for serviceName.
func NewTracer(serviceName string) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		active:      make(map[string]*Span),
		maxKept:     10000,
	}
}

func generateHexID(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// StartSpan starts a root or child span. If ctx already carries an active
// span, the new span inherits its trace ID and becomes its child,
// implementing the "inherits from current context" rule of spec.md §4.6.
func (t *Tracer) StartSpan(ctx context.Context, name, opType string) (*Span, context.Context) {
	traceID := generateHexID(16) // 32 hex chars
	parentSpanID := ""

	if parent, ok := SpanFromContext(ctx); ok {
		traceID = parent.TraceID
		parentSpanID = parent.SpanID
	}

	span := &Span{
		SpanID:        generateHexID(8), // 16 hex chars
		TraceID:       traceID,
		ParentSpanID:  parentSpanID,
		Name:          name,
		OperationType: opType,
		Start:         time.Now(),
		Status:        StatusOK,
		Attributes:    map[string]any{},
		Tags:          map[string]any{},
	}

	t.mu.Lock()
	t.active[span.SpanID] = span
	t.mu.Unlock()

	return span, ContextWithSpan(ctx, span)
}

// FinishSpan records end time/status, moves the span to the completed
// buffer, and returns it.
func (t *Tracer) FinishSpan(span *Span, status SpanStatus) *Span {
	span.mu.Lock()
	span.End = time.Now()
	span.Status = status
	span.mu.Unlock()

	t.mu.Lock()
	delete(t.active, span.SpanID)
	t.completed = append(t.completed, span)
	if len(t.completed) > t.maxKept {
		t.completed = t.completed[len(t.completed)-t.maxKept:]
	}
	t.mu.Unlock()

	logger := GetLogger()
	logger.WithContext(INFO, fmt.Sprintf("span finished: %s (%.2fms)", span.Name, float64(span.DurationMS())),
		map[string]any{"status": string(status)}, nil, LogContext{
			TraceID: span.TraceID, SpanID: span.SpanID, OperationType: span.OperationType,
		})

	return span
}

// CompletedSpans returns a snapshot of the completed-span buffer.
func (t *Tracer) CompletedSpans() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Span, len(t.completed))
	copy(out, t.completed)
	return out
}

type spanContextKey struct{}

// ContextWithSpan returns a context carrying span as the current span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey{}, span)
}

// SpanFromContext extracts the current span, if any.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	span, ok := ctx.Value(spanContextKey{}).(*Span)
	return span, ok
}

var globalTracer = NewTracer("transform-engine")

// GetTracer returns the global tracer instance.
func GetTracer() *Tracer { return globalTracer }

// SetGlobalTracer replaces the global tracer instance.
func SetGlobalTracer(t *Tracer) { globalTracer = t }

// TraceOperation starts a span named after a transform operation type,
// tagging the target table — the transform-engine analogue of the
// teacher's TraceOrderExecution/TraceDBQuery helpers.
func TraceOperation(ctx context.Context, opType, table string) (*Span, context.Context) {
	span, ctx := globalTracer.StartSpan(ctx, "transform_operation", opType)
	span.SetTag("table", table)
	span.SetTag("op_type", opType)
	return span, ctx
}
