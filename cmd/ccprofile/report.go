package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"ccprofile/internal/report"
	"ccprofile/internal/wrapperconfig"
)

// runReport implements the `ccprofile report` subcommand: materialize
// report.html from an existing trace.otlp.jsonl, either a specific run
// named by --run or the most recently written one.
func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	runID := fs.String("run", "", "run id under <profileDir>/logs to render (default: most recent)")
	open := fs.Bool("open", false, "open the report in the default browser once written")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := wrapperconfig.Load(wrapperconfig.DefaultPath())
	profileDir, err := wrapperconfig.ProfileDirPath(cfg)
	if err != nil {
		return fmt.Errorf("resolve profile directory: %w", err)
	}

	runDir, err := resolveRunDir(profileDir, *runID)
	if err != nil {
		return err
	}

	tracePath := filepath.Join(runDir, "trace.otlp.jsonl")
	reportPath := filepath.Join(runDir, "report.html")

	if err := report.Materialize(tracePath, reportPath, *open, slog.Default()); err != nil {
		return fmt.Errorf("materialize report: %w", err)
	}
	fmt.Println(reportPath)
	return nil
}

// resolveRunDir picks an explicit run id, or the most recently modified
// run directory under <profileDir>/logs when runID is empty.
func resolveRunDir(profileDir, runID string) (string, error) {
	logsDir := filepath.Join(profileDir, "logs")
	if runID != "" {
		dir := filepath.Join(logsDir, runID)
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("no such run %q under %s", runID, logsDir)
		}
		return dir, nil
	}

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return "", fmt.Errorf("no traced runs found under %s: %w", logsDir, err)
	}
	var dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no traced runs found under %s", logsDir)
	}
	sort.Slice(dirs, func(i, j int) bool {
		iInfo, _ := dirs[i].Info()
		jInfo, _ := dirs[j].Info()
		if iInfo == nil || jInfo == nil {
			return false
		}
		return iInfo.ModTime().After(jInfo.ModTime())
	})
	return filepath.Join(logsDir, dirs[0].Name()), nil
}
