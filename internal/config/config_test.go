package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[[watch]]
path = "`+filepath.Join(base, "inbox")+`"
recursive = true
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to exist, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Workflow.QueuePollInterval != 5 {
		t.Fatalf("expected default poll interval, got %d", cfg.Workflow.QueuePollInterval)
	}
	if cfg.Transcriber.Binary != "whisper" {
		t.Fatalf("expected default transcriber binary, got %q", cfg.Transcriber.Binary)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected default log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRequiresWatch(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "debug"
`)
	if _, _, _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "watch") {
		t.Fatalf("expected watch validation error, got %v", err)
	}
}

func TestLoadRejectsDuplicateWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[[watch]]
path = "`+dir+`"

[[watch]]
path = "`+dir+`"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected duplicate watch error")
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[[watch]]
path = "`+dir+`"

[logging]
format = "xml"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected log format error")
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.VerificationDir = filepath.Join(base, "verification")
	cfg.Watches = []config.Watch{{Path: filepath.Join(base, "inbox")}}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.VerificationDir, cfg.Watches[0].Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", dir, err)
		}
	}
}
