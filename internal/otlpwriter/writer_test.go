package otlpwriter

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"ccprofile/internal/otlp"
)

func TestExportAppendsOneLinePerBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.otlp.jsonl")
	w := New(path, "", nil)
	w.UpdateConfig("sess-1", "")

	span := otlp.Span{TraceID: "t1", SpanID: "s1", Name: "Session", Kind: otlp.KindInternal, StartTimeUnixNano: "1", EndTimeUnixNano: "2"}
	if err := w.Export([]otlp.Span{span}); err != nil {
		t.Fatal(err)
	}
	if err := w.Export([]otlp.Span{span}); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var doc otlp.ResourceSpansDoc
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		gotSession := false
		for _, kv := range doc.ResourceSpans[0].Resource.Attributes {
			if kv.Key == "session.id" && kv.Value.StringValue != nil && *kv.Value.StringValue == "sess-1" {
				gotSession = true
			}
		}
		if !gotSession {
			t.Fatalf("line %d missing stamped session.id", lines)
		}
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestDegradeIfUnserializableKeepsBatchAlive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.otlp.jsonl")
	w := New(path, "", nil)

	nan := math.NaN()
	good := otlp.Span{TraceID: "t1", SpanID: "s1", Name: "ok"}
	bad := otlp.Span{TraceID: "t1", SpanID: "s2", Name: "bad", Attributes: []otlp.KeyValue{{Key: "x", Value: otlp.AnyValue{DoubleValue: &nan}}}}

	if err := w.Export([]otlp.Span{good, bad}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc otlp.ResourceSpansDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("expected valid JSON line even with a degraded span: %v", err)
	}
	if len(doc.ResourceSpans[0].ScopeSpans[0].Spans) != 2 {
		t.Fatalf("expected both spans present (one degraded), got %d", len(doc.ResourceSpans[0].ScopeSpans[0].Spans))
	}
}

func TestPruneRawRemovesOldestExcess(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "raw")
	if err := os.MkdirAll(rawDir, 0o700); err != nil {
		t.Fatal(err)
	}
	w := New(filepath.Join(dir, "trace.otlp.jsonl"), rawDir, nil)
	w.maxRawFiles = 3

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(rawDir, string(rune('a'+i))+".json"), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	w.PruneRaw()

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 files remaining after prune, got %d", len(entries))
	}
}
