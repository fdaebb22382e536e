package testsupport

import (
	"path/filepath"
	"testing"

	"scribe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.VerificationDir = filepath.Join(base, "verification")
	cfg.Watches = []config.Watch{{Path: filepath.Join(base, "inbox"), Recursive: true}}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithFileReadyBudget overrides the watcher readability retry budget.
func WithFileReadyBudget(retries, delayMS int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.FileReadyRetries = retries
		cfg.Workflow.FileReadyDelayMS = delayMS
	}
}

// WithPollInterval overrides the queue poll interval in seconds.
func WithPollInterval(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.QueuePollInterval = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
