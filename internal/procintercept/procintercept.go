// Package procintercept implements the spawn/tee/measure primitive the
// hook orchestrator uses to run user-configured hook commands: every
// command this package runs is one the orchestrator itself decided to
// spawn, so there is no separate process-discovery heuristic. The tee-
// three-streams structure generalizes a two-stream (stdout/stderr), read-
// only tee loop to three streams, one of them written to (stdin).
package procintercept

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result captures everything observed about one captured subprocess.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error
}

// Run executes name/args, feeding stdin from a golang.org/x/sync/errgroup
// goroutine while os/exec captures stdout and stderr into buffers.
func Run(ctx context.Context, name string, args []string, stdin []byte) Result {
	started := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return Result{Err: err, Duration: time.Since(started)}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{Err: err, Duration: time.Since(started)}
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stdinPipe.Close()
		_, err := stdinPipe.Write(stdin)
		return err
	})

	writeErr := g.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	var runErr error
	if waitErr != nil {
		runErr = waitErr
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	} else if writeErr != nil {
		runErr = writeErr
	}

	return Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(started),
		Err:      runErr,
	}
}
