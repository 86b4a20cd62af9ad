package hookorch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ccprofile/internal/correlator"
	"ccprofile/internal/otlp"
	"ccprofile/internal/tracer"
)

type captureExporter struct {
	spans []otlp.Span
}

func (c *captureExporter) Export(spans []otlp.Span) error {
	c.spans = append(c.spans, spans...)
	return nil
}
func (c *captureExporter) UpdateConfig(string, string) {}

func writeSettings(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunRequiresRunID(t *testing.T) {
	t.Setenv("RUN_ID", "")
	exp := &captureExporter{}
	o := &Orchestrator{Tracer: tracer.New(exp), Correlator: correlator.New("", nil)}

	var out bytes.Buffer
	code := o.Run(context.Background(), []byte(`{}`), &out)
	if code != 1 {
		t.Fatalf("expected exit code 1 when RUN_ID unset, got %d", code)
	}
}

func TestRunExecutesDiscoveredCommandAndMergesResponse(t *testing.T) {
	t.Setenv("RUN_ID", "run-1")
	dir := t.TempDir()
	settings := writeSettings(t, dir, "settings.json", `{
		"hooks": {
			"PreToolUse": [
				{"matcher": "read_file", "hooks": [{"type":"command","command":"echo '{\"decision\":\"allow\"}'"}]}
			]
		}
	}`)

	exp := &captureExporter{}
	o := &Orchestrator{
		Tracer:     tracer.New(exp),
		Correlator: correlator.New("", nil),
		Settings:   []string{settings},
		Log:        slog.Default(),
	}

	event := Event{HookEventName: "PreToolUse", ToolName: "read_file"}
	eventJSON, _ := json.Marshal(event)

	var out bytes.Buffer
	code := o.Run(context.Background(), eventJSON, &out)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	var resp map[string]any
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("expected valid JSON response, got %q: %v", out.String(), err)
	}
	if resp["decision"] != "allow" {
		t.Fatalf("expected merged decision allow, got %+v", resp)
	}
	if resp["continue"] != true {
		t.Fatalf("expected continue true by default, got %+v", resp)
	}
}

func TestRunNonMatchingToolIsFilteredOut(t *testing.T) {
	t.Setenv("RUN_ID", "run-1")
	dir := t.TempDir()
	settings := writeSettings(t, dir, "settings.json", `{
		"hooks": {
			"PreToolUse": [
				{"matcher": "write_file", "hooks": [{"type":"command","command":"echo '{\"decision\":\"allow\"}'"}]}
			]
		}
	}`)

	exp := &captureExporter{}
	o := &Orchestrator{
		Tracer:     tracer.New(exp),
		Correlator: correlator.New("", nil),
		Settings:   []string{settings},
		Log:        slog.Default(),
	}

	event := Event{HookEventName: "PreToolUse", ToolName: "read_file"}
	eventJSON, _ := json.Marshal(event)

	var out bytes.Buffer
	o.Run(context.Background(), eventJSON, &out)

	var resp map[string]any
	json.Unmarshal(out.Bytes(), &resp)
	if _, ok := resp["decision"]; ok {
		t.Fatalf("expected no decision from a non-matching matcher, got %+v", resp)
	}
}

func TestRunBlockingResponseShortCircuits(t *testing.T) {
	t.Setenv("RUN_ID", "run-1")
	dir := t.TempDir()
	settings := writeSettings(t, dir, "settings.json", `{
		"hooks": {
			"PreToolUse": [
				{"hooks": [
					{"type":"command","command":"echo '{\"continue\":false,\"reason\":\"nope\"}'"},
					{"type":"command","command":"echo '{\"decision\":\"allow\"}'"}
				]}
			]
		}
	}`)

	exp := &captureExporter{}
	o := &Orchestrator{
		Tracer:     tracer.New(exp),
		Correlator: correlator.New("", nil),
		Settings:   []string{settings},
		Log:        slog.Default(),
	}

	event := Event{HookEventName: "PreToolUse", ToolName: "read_file"}
	eventJSON, _ := json.Marshal(event)

	var out bytes.Buffer
	o.Run(context.Background(), eventJSON, &out)

	var resp map[string]any
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["continue"] != false {
		t.Fatalf("expected the blocking response to short circuit, got %+v", resp)
	}
	if _, ok := resp["decision"]; ok {
		t.Fatalf("expected the second command to never run, got %+v", resp)
	}
}

func TestDiscoverCommandsSkipsSelf(t *testing.T) {
	dir := t.TempDir()
	settings := writeSettings(t, dir, "settings.json", `{
		"hooks": {
			"Stop": [{"hooks": [{"type":"command","command":"/usr/local/bin/ccprofile hook"}]}]
		}
	}`)

	o := &Orchestrator{
		Settings:         []string{settings},
		OrchestratorPath: "/usr/local/bin/ccprofile",
	}
	commands := o.discoverCommands(Event{HookEventName: "Stop"})
	if len(commands) != 0 {
		t.Fatalf("expected orchestrator's own command to be skipped, got %+v", commands)
	}
}

func TestDiscoverCommandsDedupesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeSettings(t, dir, "a.json", `{"hooks":{"Stop":[{"hooks":[{"type":"command","command":"echo hi"}]}]}}`)
	b := writeSettings(t, dir, "b.json", `{"hooks":{"Stop":[{"hooks":[{"type":"command","command":"echo hi"}]}]}}`)

	o := &Orchestrator{Settings: []string{a, b}}
	commands := o.discoverCommands(Event{HookEventName: "Stop"})
	if len(commands) != 1 {
		t.Fatalf("expected duplicate commands across files to be deduped, got %d", len(commands))
	}
}

func TestAnnotateToolUseSetsMatchedID(t *testing.T) {
	corr := correlator.New("", nil)
	corr.RecordIntention("tu_1", "read_file", json.RawMessage(`{"path":"/x"}`))

	exp := &captureExporter{}
	o := &Orchestrator{Tracer: tracer.New(exp), Correlator: corr}

	ev := Event{HookEventName: "PostToolUse", ToolName: "read_file", ToolInput: json.RawMessage(`{"path":"/x"}`)}
	span := o.Tracer.StartHookEventSpan(ev.HookEventName, ev.ToolName)
	o.annotateToolUse(span, ev)
	span.End()

	found := false
	for _, kv := range exp.spans[0].Attributes {
		if kv.Key == "tool.use_id" && kv.Value.StringValue != nil && *kv.Value.StringValue == "tu_1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected tool.use_id=tu_1 on span, got %+v", exp.spans[0].Attributes)
	}
}
