package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Watch describes one watched media root.
type Watch struct {
	// Path is the directory scribe observes for new media files.
	Path string `toml:"path"`
	// Recursive includes subdirectories in the startup scan and live watch.
	Recursive bool `toml:"recursive"`
}

// Paths contains directory configuration.
type Paths struct {
	StagingDir      string `toml:"staging_dir"`
	LogDir          string `toml:"log_dir"`
	VerificationDir string `toml:"verification_dir"`
}

// Workflow contains daemon timing and retry configuration.
type Workflow struct {
	// QueuePollInterval is the seconds between queue polls.
	QueuePollInterval int `toml:"queue_poll_interval"`
	// ErrorRetryInterval is the seconds to back off after a failed poll cycle.
	ErrorRetryInterval int `toml:"error_retry_interval"`
	// ShutdownTimeout bounds the graceful stop of in-flight pipelines, in seconds.
	ShutdownTimeout int `toml:"shutdown_timeout"`
	// FileReadyRetries is how many times the watcher re-attempts to open a
	// file that is still being written.
	FileReadyRetries int `toml:"file_ready_retries"`
	// FileReadyDelayMS is the delay between readability attempts, in milliseconds.
	FileReadyDelayMS int `toml:"file_ready_delay_ms"`
}

// Transcriber contains configuration for the speech-to-text collaborator.
type Transcriber struct {
	Binary        string `toml:"binary"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	Model         string `toml:"model"`
	Language      string `toml:"language"`
	RemoveSilence bool   `toml:"remove_silence"`
}

// Thumbnails contains configuration for thumbnail extraction.
type Thumbnails struct {
	Enabled     bool `toml:"enabled"`
	SeekSeconds int  `toml:"seek_seconds"`
	Width       int  `toml:"width"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scribe.
//
// Sections by subsystem:
//   - Watches: watched media roots
//   - Paths: staging, log, and verification directories
//   - Workflow: poll intervals, shutdown timeout, file-ready retry budget
//   - Transcriber: whisper and ffmpeg invocation settings
//   - Thumbnails: thumbnail extraction settings
//   - Logging: log format and level
type Config struct {
	Watches     []Watch     `toml:"watch"`
	Paths       Paths       `toml:"paths"`
	Workflow    Workflow    `toml:"workflow"`
	Transcriber Transcriber `toml:"transcriber"`
	Thumbnails  Thumbnails  `toml:"thumbnails"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// SampleConfig returns the commented sample configuration shipped with the binary.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path and the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// Watched roots are created on a best-effort basis so the daemon can start
// while external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.VerificationDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, watch := range c.Watches {
		if strings.TrimSpace(watch.Path) != "" {
			_ = os.MkdirAll(watch.Path, 0o755)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
