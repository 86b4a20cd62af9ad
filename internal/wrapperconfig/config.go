// Package wrapperconfig loads this tool's own preferences, distinct from
// the host CLI's native JSON settings that internal/hookorch reads, using
// a YAML-struct-plus-env-override convention.
package wrapperconfig

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the wrapper's own configuration, loaded from
// ~/.ccprofile/config.yaml.
type Config struct {
	AIBaseURL       string `yaml:"ai_base_url"`
	PromptCharLimit int    `yaml:"prompt_char_limit"`
	OpenOnComplete  bool   `yaml:"open_on_complete"`
	ProfileDir      string `yaml:"profile_dir"`
}

func defaults() Config {
	return Config{
		AIBaseURL:       "https://api.anthropic.com",
		PromptCharLimit: 10000,
		OpenOnComplete:  false,
		ProfileDir:      ".ccprofile",
	}
}

// DefaultPath returns ~/.ccprofile/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ccprofile", "config.yaml")
}

// Load reads path, falling back to defaults for any field the file omits
// or if the file does not exist. Environment overrides (AI_BASE_URL) take
// precedence over both.
func Load(path string) Config {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("AI_BASE_URL"); v != "" {
		cfg.AIBaseURL = v
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = defaults().ProfileDir
	}
	return cfg
}

// ProfileDirPath resolves the absolute path to <userHome>/<profileDir>.
func ProfileDirPath(cfg Config) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, cfg.ProfileDir), nil
}
