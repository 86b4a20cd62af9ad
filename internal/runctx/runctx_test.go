package runctx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewCreatesRunDirectory(t *testing.T) {
	profileDir := t.TempDir()
	run, err := New(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	if run.RunID == "" {
		t.Fatal("expected non-empty run id")
	}
	if _, err := os.Stat(filepath.Join(run.RunDir, "raw")); err != nil {
		t.Fatalf("expected raw subdirectory to exist: %v", err)
	}
	if run.SessionID != placeholderSessionID {
		t.Fatalf("expected placeholder session id, got %q", run.SessionID)
	}
}

func TestPublishEnv(t *testing.T) {
	run, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	env := run.PublishEnv()
	if env["RUN_ID"] != run.RunID {
		t.Fatalf("RUN_ID mismatch: %q vs %q", env["RUN_ID"], run.RunID)
	}
	if env["OUTPUT_DIR"] != run.RunDir {
		t.Fatalf("OUTPUT_DIR mismatch: %q vs %q", env["OUTPUT_DIR"], run.RunDir)
	}
}

func TestTracePathAndReportPath(t *testing.T) {
	run, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(run.TracePath()) != "trace.otlp.jsonl" {
		t.Fatalf("unexpected trace path: %s", run.TracePath())
	}
	if filepath.Base(run.ReportPath()) != "report.html" {
		t.Fatalf("unexpected report path: %s", run.ReportPath())
	}
}

func TestDiscoverSessionIDMissingFile(t *testing.T) {
	if got := DiscoverSessionID(filepath.Join(t.TempDir(), "no-such-file.jsonl")); got != "" {
		t.Fatalf("expected empty string for missing trace file, got %q", got)
	}
}

func TestDiscoverSessionIDFindsRealID(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.otlp.jsonl")
	line := `{"resourceSpans":[{"scopeSpans":[{"spans":[{"attributes":[{"key":"session.id","value":{"stringValue":"sess-123"}}]}]}]}]}` + "\n"
	if err := os.WriteFile(tracePath, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := DiscoverSessionID(tracePath); got != "sess-123" {
		t.Fatalf("expected sess-123, got %q", got)
	}
}

func TestDiscoverSessionIDIgnoresPlaceholder(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.otlp.jsonl")
	line := `{"resourceSpans":[{"scopeSpans":[{"spans":[{"attributes":[{"key":"session.id","value":{"stringValue":"unknown"}}]}]}]}]}` + "\n"
	if err := os.WriteFile(tracePath, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := DiscoverSessionID(tracePath); got != "" {
		t.Fatalf("expected placeholder session id to be ignored, got %q", got)
	}
}
