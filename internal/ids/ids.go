// Package ids generates the trace/span identifiers the tracer core stamps
// onto every span. It reuses go.opentelemetry.io/otel/trace's ID types so
// the hex formatting matches what any OTel-aware downstream tool expects,
// without pulling in the full OTel SDK's TracerProvider machinery.
package ids

import (
	"crypto/rand"

	"go.opentelemetry.io/otel/trace"
)

// NewTraceID returns a random 128-bit trace id; its String method gives
// the hex encoding.
func NewTraceID() (trace.TraceID, error) {
	var id trace.TraceID
	if _, err := rand.Read(id[:]); err != nil {
		return trace.TraceID{}, err
	}
	return id, nil
}

// NewSpanID returns a random 64-bit span id; its String method gives the
// hex encoding.
func NewSpanID() (trace.SpanID, error) {
	var id trace.SpanID
	if _, err := rand.Read(id[:]); err != nil {
		return trace.SpanID{}, err
	}
	return id, nil
}

// MustTraceID panics on entropy failure; used at run-start where a failure
// here means the host has no usable crypto/rand source and nothing else
// this tool does will work either.
func MustTraceID() trace.TraceID {
	id, err := NewTraceID()
	if err != nil {
		panic(err)
	}
	return id
}

func MustSpanID() trace.SpanID {
	id, err := NewSpanID()
	if err != nil {
		panic(err)
	}
	return id
}
