// Package otlpwriter serializes span batches to OTLP JSON and appends them
// atomically to the run's trace.otlp.jsonl, across both goroutines within
// this process and other OS processes (hook orchestrator invocations,
// user hooks) sharing the same file.
package otlpwriter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"ccprofile/internal/otlp"
)

const scopeName = "ccprofile"

// Writer appends OTLP ResourceSpans documents to a JSONL file, one per
// Export call, guarding both intra-process and inter-process concurrency.
type Writer struct {
	mu        sync.Mutex
	path      string
	sessionID string
	parent    string
	log       *slog.Logger

	rawDir      string
	maxRawFiles int
}

// New opens a writer for path, a trace.otlp.jsonl location. rawDir, when
// non-empty, is where spillover payloads (>10KB) are written by callers
// before referencing them by hash from a span attribute.
func New(path, rawDir string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{path: path, rawDir: rawDir, maxRawFiles: 200, log: log}
}

// UpdateConfig patches the session/parent-session ids stamped onto every
// subsequently exported span. Already-written lines are not rewritten;
// readers must treat session.id on the root span as authoritative when it
// differs from earlier spans in the same trace, per the run-log contract.
func (w *Writer) UpdateConfig(sessionID, parentSessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessionID = sessionID
	w.parent = parentSessionID
}

// Export stamps, serializes, and appends one batch of spans as a single
// OTLP ResourceSpans document (one JSONL line). It is best-effort: a
// serialization failure on one span degrades that span with an error
// marker rather than dropping the whole batch.
func (w *Writer) Export(spans []otlp.Span) error {
	w.mu.Lock()
	sessionID, parent := w.sessionID, w.parent
	w.mu.Unlock()

	resourceAttrs := []otlp.KeyValue{otlp.StringAttr("session.id", sessionID)}
	if parent != "" {
		resourceAttrs = append(resourceAttrs, otlp.StringAttr("parent.session.id", parent))
	}

	stamped := make([]otlp.Span, 0, len(spans))
	for _, s := range spans {
		stamped = append(stamped, w.degradeIfUnserializable(s))
	}

	doc := otlp.ResourceSpansDoc{
		ResourceSpans: []otlp.ResourceSpans{{
			Resource: otlp.Resource{Attributes: resourceAttrs},
			ScopeSpans: []otlp.ScopeSpans{{
				Scope: otlp.InstrumentationScope{Name: scopeName},
				Spans: stamped,
			}},
		}},
	}

	line, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("otlpwriter: marshal batch: %w", err)
	}
	line = append(line, '\n')

	return w.appendLocked(line)
}

// degradeIfUnserializable round-trips a span through json.Marshal so a
// single bad attribute doesn't fail the whole batch; on failure the span
// is replaced with a minimal stand-in carrying an error marker attribute.
func (w *Writer) degradeIfUnserializable(s otlp.Span) otlp.Span {
	if _, err := json.Marshal(s); err == nil {
		return s
	}
	w.log.Warn("otlpwriter: dropping unserializable span attributes", "span", s.Name)
	return otlp.Span{
		TraceID:           s.TraceID,
		SpanID:            s.SpanID,
		ParentSpanID:      s.ParentSpanID,
		Name:              s.Name,
		Kind:              s.Kind,
		StartTimeUnixNano: s.StartTimeUnixNano,
		EndTimeUnixNano:   s.EndTimeUnixNano,
		Attributes:        []otlp.KeyValue{otlp.BoolAttr("ccprofile.degraded", true)},
		Status:            &otlp.Status{Code: otlp.StatusError, Message: "attribute serialization failed"},
	}
}

// appendLocked appends line to w.path under both a process-local mutex and
// a cross-process advisory flock, keeping the append atomic for batches
// that may exceed the OS pipe-buffer atomic-write guarantee.
func (w *Writer) appendLocked(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o700); err != nil {
		return fmt.Errorf("otlpwriter: run directory unwritable: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("otlpwriter: open trace file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		w.log.Warn("otlpwriter: advisory lock unavailable, proceeding unlocked", "error", err)
	} else {
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("otlpwriter: append: %w", err)
	}
	return nil
}

// PruneRaw deletes the oldest spillover files under rawDir once the count
// exceeds maxRawFiles, bounding disk growth the same way log rotation does.
func (w *Writer) PruneRaw() {
	if w.rawDir == "" {
		return
	}
	entries, err := os.ReadDir(w.rawDir)
	if err != nil || len(entries) <= w.maxRawFiles {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ii, errI := entries[i].Info()
		jj, errJ := entries[j].Info()
		if errI != nil || errJ != nil {
			return false
		}
		return ii.ModTime().Before(jj.ModTime())
	})
	excess := len(entries) - w.maxRawFiles
	for i := 0; i < excess; i++ {
		path := filepath.Join(w.rawDir, entries[i].Name())
		if err := os.Remove(path); err != nil {
			w.log.Warn("otlpwriter: failed to prune raw spillover", "path", path, "error", err)
		}
	}
}

// Shutdown is a no-op sync point: every Export is already a complete,
// synchronous append, so there is no background buffer to flush.
func (w *Writer) Shutdown() error {
	return nil
}
