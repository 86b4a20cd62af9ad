// Package tracer implements the process-wide tracer core that owns the
// root session span, vends child-span constructors for the api/tool/hook
// categories, and finalizes spans by handing them to the OTLP writer the
// moment they end.
package tracer

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ccprofile/internal/ids"
	"ccprofile/internal/otlp"
)

// Exporter is the subset of otlpwriter.Writer the tracer depends on, kept
// narrow so tests can substitute an in-memory collector.
type Exporter interface {
	Export(spans []otlp.Span) error
	UpdateConfig(sessionID, parentSessionID string)
}

// Tracer owns a trace id for the run and vends Span handles.
type Tracer struct {
	exporter Exporter
	traceID  oteltrace.TraceID

	mu   sync.Mutex
	root *Span
	open map[oteltrace.SpanID]*Span
}

// New starts a root session span and returns the tracer that owns it.
func New(exporter Exporter) *Tracer {
	t := &Tracer{
		exporter: exporter,
		traceID:  ids.MustTraceID(),
		open:     make(map[oteltrace.SpanID]*Span),
	}
	t.root = t.newSpan("Session", otlp.KindInternal, nil)
	return t
}

// Root returns the session root span handle.
func (t *Tracer) Root() *Span { return t.root }

// TraceID returns the trace id this tracer stamps on every span.
func (t *Tracer) TraceID() oteltrace.TraceID { return t.traceID }

// Attach returns a tracer that parents new spans under a trace and root
// span owned by another process (the wrapper's exec invocation), without
// creating or ending a session root of its own. The hook orchestrator runs
// as a separate short-lived process per event and uses this to contribute
// spans to the same trace instead of starting an unrelated one.
func Attach(exporter Exporter, traceID oteltrace.TraceID, rootSpanID oteltrace.SpanID) *Tracer {
	t := &Tracer{
		exporter: exporter,
		traceID:  traceID,
		open:     make(map[oteltrace.SpanID]*Span),
	}
	t.root = &Span{
		tracer:  t,
		traceID: traceID,
		spanID:  rootSpanID,
		ended:   true,
	}
	return t
}

// UpdateSessionID rewrites the session id stamped on future exports.
// Already-exported spans are left as-is; only later writes pick it up.
func (t *Tracer) UpdateSessionID(sessionID, parentSessionID string) {
	t.exporter.UpdateConfig(sessionID, parentSessionID)
}

func (t *Tracer) newSpan(name string, kind otlp.Kind, parent *Span) *Span {
	spanID := ids.MustSpanID()
	var parentID oteltrace.SpanID
	if parent != nil {
		parentID = parent.spanID
	}
	s := &Span{
		tracer:     t,
		traceID:    t.traceID,
		spanID:     spanID,
		parentID:   parentID,
		name:       name,
		kind:       kind,
		startedAt:  time.Now(),
		attributes: make(map[string]attribute.Value),
	}
	t.mu.Lock()
	t.open[spanID] = s
	t.mu.Unlock()
	return s
}

// StartAPISpan begins an API-category span.
func (t *Tracer) StartAPISpan(method, url string) *Span {
	s := t.newSpan("API "+method+" "+url, otlp.KindClient, t.root)
	return s
}

// StartToolSpan begins a tool-category span, optionally parented to an
// explicit ancestor (otherwise defaults to the session root).
func (t *Tracer) StartToolSpan(name string, parent *Span) *Span {
	if parent == nil {
		parent = t.root
	}
	return t.newSpan("Tool: "+name, otlp.KindInternal, parent)
}

// StartHookEventSpan begins a hook-event span.
func (t *Tracer) StartHookEventSpan(event, toolName string) *Span {
	name := "Hook: " + event
	if toolName != "" {
		name = name + "[" + toolName + "]"
	}
	return t.newSpan(name, otlp.KindInternal, t.root)
}

// StartHookExecutionSpan begins a nested execution span under a hook-event
// span for one discovered user-hook command.
func (t *Tracer) StartHookExecutionSpan(command string, parent *Span) *Span {
	if parent == nil {
		parent = t.root
	}
	return t.newSpan("Exec: "+command, otlp.KindInternal, parent)
}

// EndRoot closes the session root span; callers invoke this once, at host
// exit.
func (t *Tracer) EndRoot() {
	t.root.End()
}

func (t *Tracer) removeOpen(id oteltrace.SpanID) {
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}
