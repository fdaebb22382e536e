package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeWatches(); err != nil {
		return err
	}
	c.normalizeTranscriber()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.VerificationDir) == "" {
		c.Paths.VerificationDir = defaultVerificationDir
	}
	if c.Paths.VerificationDir, err = expandPath(c.Paths.VerificationDir); err != nil {
		return fmt.Errorf("paths.verification_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatches() error {
	normalized := c.Watches[:0]
	for i, watch := range c.Watches {
		watch.Path = strings.TrimSpace(watch.Path)
		if watch.Path == "" {
			continue
		}
		expanded, err := expandPath(watch.Path)
		if err != nil {
			return fmt.Errorf("watch[%d].path: %w", i, err)
		}
		watch.Path = expanded
		normalized = append(normalized, watch)
	}
	c.Watches = normalized
	return nil
}

func (c *Config) normalizeTranscriber() {
	if strings.TrimSpace(c.Transcriber.Binary) == "" {
		c.Transcriber.Binary = defaultTranscriberBinary
	}
	if strings.TrimSpace(c.Transcriber.FFmpegBinary) == "" {
		c.Transcriber.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Transcriber.Model) == "" {
		c.Transcriber.Model = defaultTranscriberModel
	}
	c.Transcriber.Language = strings.TrimSpace(c.Transcriber.Language)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
