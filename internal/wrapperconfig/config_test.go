package wrapperconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "no-such-config.yaml"))
	want := defaults()
	if cfg != want {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "ai_base_url: https://example.test\nprompt_char_limit: 500\nopen_on_complete: true\nprofile_dir: .my-ccprofile\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.AIBaseURL != "https://example.test" {
		t.Fatalf("AIBaseURL = %q", cfg.AIBaseURL)
	}
	if cfg.PromptCharLimit != 500 {
		t.Fatalf("PromptCharLimit = %d", cfg.PromptCharLimit)
	}
	if !cfg.OpenOnComplete {
		t.Fatal("expected OpenOnComplete true")
	}
	if cfg.ProfileDir != ".my-ccprofile" {
		t.Fatalf("ProfileDir = %q", cfg.ProfileDir)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ai_base_url: https://from-file.test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AI_BASE_URL", "https://from-env.test")

	cfg := Load(path)
	if cfg.AIBaseURL != "https://from-env.test" {
		t.Fatalf("expected env override, got %q", cfg.AIBaseURL)
	}
}

func TestProfileDirPathJoinsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := ProfileDirPath(Config{ProfileDir: ".ccprofile"})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(home, ".ccprofile") {
		t.Fatalf("ProfileDirPath = %q", path)
	}
}
