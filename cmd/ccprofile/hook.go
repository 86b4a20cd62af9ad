package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	oteltrace "go.opentelemetry.io/otel/trace"

	"ccprofile/internal/correlator"
	"ccprofile/internal/hookorch"
	"ccprofile/internal/otlpwriter"
	"ccprofile/internal/tracer"
)

// runHook implements the `ccprofile hook` subcommand: this is the binary
// registered under the reserved hook name in the host's settings files. It
// is invoked once per hook event with the event JSON on stdin and must
// write its response JSON to stdout before exiting.
func runHook(args []string) error {
	runID := os.Getenv("RUN_ID")
	outputDir := os.Getenv("OUTPUT_DIR")
	if runID == "" || outputDir == "" {
		return fmt.Errorf("RUN_ID/OUTPUT_DIR not set; ccprofile hook must be invoked by a traced session")
	}

	eventJSON, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read event from stdin: %w", err)
	}

	log := slog.Default().With("run_id", runID)
	tracePath := filepath.Join(outputDir, "trace.otlp.jsonl")

	writer := otlpwriter.New(tracePath, filepath.Join(outputDir, "raw"), log)
	writer.UpdateConfig(os.Getenv("SESSION_ID"), os.Getenv("PARENT_SESSION"))
	tr := newHookTracer(writer, log)

	corr := correlator.New(filepath.Join(outputDir, "intentions.jsonl"), log)
	if err := corr.LoadSidecar(); err != nil {
		log.Warn("ccprofile hook: failed to load tool-use intention sidecar", "error", err)
	}

	self, err := os.Executable()
	if err != nil {
		self = ""
	}

	orch := &hookorch.Orchestrator{
		Tracer:           tr,
		Correlator:       corr,
		OrchestratorPath: self,
		Settings:         discoverSettingsFiles(),
		Log:              log,
	}

	var out bytes.Buffer
	code := orch.Run(context.Background(), eventJSON, &out)
	os.Stdout.Write(out.Bytes())
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// discoverSettingsFiles returns the three host settings locations in
// precedence order: user-global, project, project-local.
func discoverSettingsFiles() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".claude", "settings.json"))
	}
	cwd, err := os.Getwd()
	if err == nil {
		paths = append(paths,
			filepath.Join(cwd, ".claude", "settings.json"),
			filepath.Join(cwd, ".claude", "settings.local.json"),
		)
	}
	return paths
}

// newHookTracer attaches to the trace the parent exec invocation started,
// read back from TRACE_ID/ROOT_SPAN_ID. Those are absent only if the hook
// is invoked outside of a ccprofile-managed session (e.g. manually, while
// debugging settings), in which case it falls back to a standalone trace
// rather than failing the hook call.
func newHookTracer(writer *otlpwriter.Writer, log *slog.Logger) *tracer.Tracer {
	if log == nil {
		log = slog.Default()
	}
	traceID, errT := oteltrace.TraceIDFromHex(os.Getenv("TRACE_ID"))
	rootSpanID, errS := oteltrace.SpanIDFromHex(os.Getenv("ROOT_SPAN_ID"))
	if errT != nil || errS != nil {
		log.Warn("ccprofile hook: no parent trace context, starting a standalone trace")
		return tracer.New(writer)
	}
	return tracer.Attach(writer, traceID, rootSpanID)
}
