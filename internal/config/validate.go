package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOracle(); err != nil {
		return err
	}
	if err := c.validateRename(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == c.Paths.ArchiveDir {
		return errors.New("paths.archive_dir must differ from paths.staging_dir")
	}
	// The archive may nest inside staging (that is the default layout), but
	// staging inside the archive would make every run re-sort its own output.
	if within(c.Paths.ArchiveDir, c.Paths.StagingDir) {
		return errors.New("paths.staging_dir must not be inside paths.archive_dir")
	}
	return nil
}

func (c *Config) validateOracle() error {
	if c.Oracle.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/magpie/config.toml"
		}
		return fmt.Errorf("oracle.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'magpie config init')", defaultPath)
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		return errors.New("oracle.timeout_seconds must be positive")
	}
	if c.Oracle.RetryAttempts < 1 {
		return errors.New("oracle.retry_attempts must be >= 1")
	}
	if c.Oracle.RetryDelaySeconds < 0 {
		return errors.New("oracle.retry_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateRename() error {
	if c.Rename.BatchSize < 1 {
		return errors.New("rename.batch_size must be >= 1")
	}
	if c.Rename.BatchDelaySeconds < 0 {
		return errors.New("rename.batch_delay_seconds must be >= 0")
	}
	if strings.TrimSpace(c.Rename.ProcessedMarker) == "" {
		return errors.New("rename.processed_marker must be set")
	}
	if len(c.Rename.ImageExtensions) == 0 {
		return errors.New("rename.image_extensions must include at least one extension")
	}
	for _, ext := range c.Rename.ImageExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("rename.image_extensions entry %q must start with a dot", ext)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

// within reports whether child sits at or below parent.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}
