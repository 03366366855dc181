package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateReasoner(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DerivedDir) == "" {
		return errors.New("paths.derived_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateReasoner() error {
	if c.Reasoner.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/crucible/config.toml"
		}
		return fmt.Errorf("reasoner.api_key is required. Set CRUCIBLE_REASONER_API_KEY env var or edit %s (create with 'crucible config init')", defaultPath)
	}
	if strings.TrimSpace(c.Reasoner.BaseURL) == "" {
		return errors.New("reasoner.base_url must be set")
	}
	if strings.TrimSpace(c.Reasoner.Model) == "" {
		return errors.New("reasoner.model must be set")
	}
	if c.Reasoner.TimeoutSeconds <= 0 {
		return errors.New("reasoner.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxStageRetries < 0 {
		return errors.New("pipeline.max_stage_retries must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.retry_backoff_ms":      c.Pipeline.RetryBackoffMillis,
		"pipeline.stage_timeout_seconds": c.Pipeline.StageTimeoutSeconds,
		"pipeline.subscriber_buffer":     c.Pipeline.SubscriberBuffer,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetainLimit < 0 {
		return errors.New("pipeline.retain_limit must be >= 0")
	}
	return nil
}

func (c *Config) validateIntake() error {
	if len(c.Intake.AllowedExtensions) == 0 {
		return errors.New("intake.allowed_extensions must include at least one extension")
	}
	if c.Intake.MaxFileBytes <= 0 {
		return errors.New("intake.max_file_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
