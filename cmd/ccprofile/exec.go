package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"

	"ccprofile/internal/correlator"
	"ccprofile/internal/httpintercept"
	"ccprofile/internal/otlpwriter"
	"ccprofile/internal/report"
	"ccprofile/internal/runctx"
	"ccprofile/internal/tracer"
	"ccprofile/internal/wrapperconfig"
)

// runExec implements the `ccprofile exec` subcommand: resolve the run
// context, start the interceptor, launch the host CLI, and materialize a
// report once it exits.
func runExec(args []string) error {
	openHTML, reportOnly, noTrace, hostArgs := parseExecFlags(args)

	cfg := wrapperconfig.Load(wrapperconfig.DefaultPath())
	profileDir, err := wrapperconfig.ProfileDirPath(cfg)
	if err != nil {
		return fmt.Errorf("resolve profile directory: %w", err)
	}

	hostPath, err := discoverHostBinary(profileDir)
	if err != nil {
		return err
	}

	if noTrace {
		exitCode, execErr := execHostWithContext(hostPath, hostArgs, nil)
		if execErr != nil {
			return execErr
		}
		os.Exit(exitCode)
		return nil
	}

	run, err := runctx.New(profileDir)
	if err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	log := slog.Default().With("run_id", run.RunID)

	writer := otlpwriter.New(run.TracePath(), filepath.Join(run.RunDir, "raw"), log)
	tr := tracer.New(writer)
	corr := correlator.New(filepath.Join(run.RunDir, "intentions.jsonl"), log)

	proxy, err := httpintercept.New(cfg.AIBaseURL, tr, corr, log)
	if err != nil {
		return fmt.Errorf("start interceptor: %w", err)
	}
	if err := proxy.Start(); err != nil {
		return fmt.Errorf("start interceptor: %w", err)
	}

	env := run.PublishEnv()
	env["ANTHROPIC_BASE_URL"] = proxy.Addr()
	env["OPEN_HTML"] = fmt.Sprintf("%v", openHTML && !reportOnly)
	env["TRACE_ID"] = tr.TraceID().String()
	env["ROOT_SPAN_ID"] = tr.Root().SpanID().String()

	exitCode, execErr := execHostWithContext(hostPath, hostArgs, env)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = proxy.Shutdown(shutdownCtx)
	cancel()

	if sessionID := runctx.DiscoverSessionID(run.TracePath()); sessionID != "" {
		run.SessionID = sessionID
		tr.UpdateSessionID(sessionID, os.Getenv("PARENT_SESSION"))
	}
	tr.EndRoot()
	_ = writer.Shutdown()
	writer.PruneRaw()

	shouldOpen := openHTML && !reportOnly
	if err := report.Materialize(run.TracePath(), run.ReportPath(), shouldOpen, log); err != nil {
		log.Warn("failed to materialize report", "error", err)
	}
	printSummary(run.TracePath(), run.ReportPath())

	if execErr != nil {
		return execErr
	}
	os.Exit(exitCode)
	return nil
}

func parseExecFlags(args []string) (openHTML, reportOnly, noTrace bool, hostArgs []string) {
	i := 0
	for ; i < len(args); i++ {
		switch args[i] {
		case "--cc-open":
			openHTML = true
		case "--cc-no-trace":
			noTrace = true
		case "--cc-report":
			reportOnly = true
		default:
			return openHTML, reportOnly, noTrace, args[i:]
		}
	}
	return openHTML, reportOnly, noTrace, nil
}

// discoverHostBinary resolves the host CLI binary: MOCK_HOST_PATH for
// tests, otherwise the symlink the installer placed under
// <profileDir>/bin.
func discoverHostBinary(profileDir string) (string, error) {
	if mock := os.Getenv("MOCK_HOST_PATH"); mock != "" {
		return mock, nil
	}
	link := filepath.Join(profileDir, "bin", "claude-host")
	if _, err := os.Stat(link); err == nil {
		return link, nil
	}
	return "", fmt.Errorf("host binary not found (looked for %s); run ccprofile init first", link)
}

func execHostWithContext(hostPath string, args []string, env map[string]string) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := exec.CommandContext(ctx, hostPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("launch host binary: %w", err)
	}
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 1, err
}

func printSummary(tracePath, reportPath string) {
	info, err := os.Stat(tracePath)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "ccprofile: trace %s written (%s)\n", tracePath, humanize.Bytes(uint64(info.Size())))
	fmt.Fprintf(os.Stderr, "ccprofile: report at %s\n", reportPath)
}
