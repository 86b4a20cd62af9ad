package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseExecFlagsStopsAtFirstHostArg(t *testing.T) {
	openHTML, reportOnly, noTrace, hostArgs := parseExecFlags([]string{"--cc-open", "--cc-no-trace", "chat", "--model", "x"})
	if !openHTML || !noTrace || reportOnly {
		t.Fatalf("flags = open:%v report:%v notrace:%v", openHTML, reportOnly, noTrace)
	}
	want := []string{"chat", "--model", "x"}
	if len(hostArgs) != len(want) {
		t.Fatalf("hostArgs = %+v", hostArgs)
	}
	for i := range want {
		if hostArgs[i] != want[i] {
			t.Fatalf("hostArgs = %+v, want %+v", hostArgs, want)
		}
	}
}

func TestParseExecFlagsNoFlags(t *testing.T) {
	openHTML, reportOnly, noTrace, hostArgs := parseExecFlags([]string{"chat"})
	if openHTML || reportOnly || noTrace {
		t.Fatal("expected all flags false")
	}
	if len(hostArgs) != 1 || hostArgs[0] != "chat" {
		t.Fatalf("hostArgs = %+v", hostArgs)
	}
}

func TestDiscoverHostBinaryPrefersMockPath(t *testing.T) {
	t.Setenv("MOCK_HOST_PATH", "/usr/bin/true")
	path, err := discoverHostBinary(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if path != "/usr/bin/true" {
		t.Fatalf("path = %q", path)
	}
}

func TestDiscoverHostBinaryFindsInstalledSymlink(t *testing.T) {
	t.Setenv("MOCK_HOST_PATH", "")
	profileDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(profileDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	linkPath := filepath.Join(profileDir, "bin", "claude-host")
	if err := os.WriteFile(linkPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	path, err := discoverHostBinary(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	if path != linkPath {
		t.Fatalf("path = %q, want %q", path, linkPath)
	}
}

func TestDiscoverHostBinaryMissingReturnsError(t *testing.T) {
	t.Setenv("MOCK_HOST_PATH", "")
	if _, err := discoverHostBinary(t.TempDir()); err == nil {
		t.Fatal("expected an error when no host binary is installed")
	}
}

func TestExecHostWithContextCapturesExitCode(t *testing.T) {
	code, err := execHostWithContext("/bin/sh", []string{"-c", "exit 7"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestExecHostWithContextPassesEnv(t *testing.T) {
	code, err := execHostWithContext("/bin/sh", []string{"-c", `test "$CCPROFILE_TEST_VAR" = "hello"`}, map[string]string{"CCPROFILE_TEST_VAR": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (env var not passed through)", code)
	}
}

func TestPrintSummaryDoesNotPanicWhenTraceMissing(t *testing.T) {
	printSummary(filepath.Join(t.TempDir(), "missing.jsonl"), "")
}
