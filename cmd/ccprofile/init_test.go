package main

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestRunInitPrintsSettingsStanzaAndAlias(t *testing.T) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	runErr := runInit(nil)

	w.Close()
	os.Stdout = origStdout
	out, _ := io.ReadAll(r)

	if runErr != nil {
		t.Fatal(runErr)
	}
	if !strings.Contains(string(out), `"PreToolUse"`) {
		t.Fatalf("expected PreToolUse stanza in output, got:\n%s", out)
	}
	if !strings.Contains(string(out), `alias claude="ccprofile exec"`) {
		t.Fatalf("expected shell alias line in output, got:\n%s", out)
	}
}
