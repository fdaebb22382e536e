package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWatches(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateThumbnails(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateWatches() error {
	if len(c.Watches) == 0 {
		return errors.New("at least one [[watch]] entry is required")
	}
	seen := make(map[string]struct{}, len(c.Watches))
	for _, watch := range c.Watches {
		if _, dup := seen[watch.Path]; dup {
			return fmt.Errorf("watch path %q configured more than once", watch.Path)
		}
		seen[watch.Path] = struct{}{}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	positives := map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.shutdown_timeout":     c.Workflow.ShutdownTimeout,
		"workflow.file_ready_retries":   c.Workflow.FileReadyRetries,
		"workflow.file_ready_delay_ms":  c.Workflow.FileReadyDelayMS,
	}
	for key, value := range positives {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateThumbnails() error {
	if !c.Thumbnails.Enabled {
		return nil
	}
	if c.Thumbnails.SeekSeconds < 0 {
		return errors.New("thumbnails.seek_seconds must not be negative")
	}
	if c.Thumbnails.Width <= 0 {
		return errors.New("thumbnails.width must be positive")
	}
	return nil
}
