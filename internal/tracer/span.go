package tracer

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ccprofile/internal/otlp"
)

// Span is a mutable handle on an in-flight span. It accumulates attributes
// until End is called, at which point it is enqueued to the writer; ending
// a span never blocks on anything beyond the writer's own append.
type Span struct {
	tracer   *Tracer
	traceID  oteltrace.TraceID
	spanID   oteltrace.SpanID
	parentID oteltrace.SpanID
	name     string
	kind     otlp.Kind

	mu         sync.Mutex
	startedAt  time.Time
	endedAt    time.Time
	attributes map[string]attribute.Value
	status     otlp.StatusCode
	statusMsg  string
	ended      bool
}

// SpanID exposes the raw id so correlators can key by it.
func (s *Span) SpanID() oteltrace.SpanID { return s.spanID }

// SetAttribute records a string attribute.
func (s *Span) SetAttribute(key, value string) *Span {
	s.mu.Lock()
	s.attributes[key] = attribute.StringValue(value)
	s.mu.Unlock()
	return s
}

// SetIntAttribute records an integer attribute.
func (s *Span) SetIntAttribute(key string, value int64) *Span {
	s.mu.Lock()
	s.attributes[key] = attribute.Int64Value(value)
	s.mu.Unlock()
	return s
}

// SetFloatAttribute records a floating-point attribute.
func (s *Span) SetFloatAttribute(key string, value float64) *Span {
	s.mu.Lock()
	s.attributes[key] = attribute.Float64Value(value)
	s.mu.Unlock()
	return s
}

// SetBoolAttribute records a boolean attribute.
func (s *Span) SetBoolAttribute(key string, value bool) *Span {
	s.mu.Lock()
	s.attributes[key] = attribute.BoolValue(value)
	s.mu.Unlock()
	return s
}

// RecordException records a parsing/forwarding failure as an exception
// attribute without affecting host execution.
func (s *Span) RecordException(err error) *Span {
	if err == nil {
		return s
	}
	return s.SetAttribute("exception.message", err.Error())
}

// SetStatus sets the span's terminal status.
func (s *Span) SetStatus(code otlp.StatusCode, message string) *Span {
	s.mu.Lock()
	s.status = code
	s.statusMsg = message
	s.mu.Unlock()
	return s
}

// End finalizes the span and enqueues it to the writer. It is idempotent;
// calling End twice is a no-op after the first call.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.endedAt.IsZero() {
		s.endedAt = time.Now()
	}
	wire := s.toWireLocked()
	s.mu.Unlock()

	s.tracer.removeOpen(s.spanID)
	_ = s.tracer.exporter.Export([]otlp.Span{wire})
}

func (s *Span) toWireLocked() otlp.Span {
	attrs := make([]otlp.KeyValue, 0, len(s.attributes))
	for k, v := range s.attributes {
		attrs = append(attrs, toKeyValue(k, v))
	}
	var parentHex string
	if s.parentID.IsValid() {
		parentHex = s.parentID.String()
	}
	var status *otlp.Status
	if s.status != otlp.StatusUnset || s.statusMsg != "" {
		status = &otlp.Status{Code: s.status, Message: s.statusMsg}
	}
	return otlp.Span{
		TraceID:           s.traceID.String(),
		SpanID:            s.spanID.String(),
		ParentSpanID:      parentHex,
		Name:              s.name,
		Kind:              s.kind,
		StartTimeUnixNano: formatNano(s.startedAt),
		EndTimeUnixNano:   formatNano(s.endedAt),
		Attributes:        attrs,
		Status:            status,
	}
}

func formatNano(t time.Time) string {
	return otlp.FormatInt(t.UnixNano())
}

func toKeyValue(key string, v attribute.Value) otlp.KeyValue {
	switch v.Type() {
	case attribute.BOOL:
		return otlp.BoolAttr(key, v.AsBool())
	case attribute.INT64:
		return otlp.IntAttr(key, v.AsInt64())
	case attribute.FLOAT64:
		return otlp.DoubleAttr(key, v.AsFloat64())
	default:
		return otlp.StringAttr(key, v.AsString())
	}
}
