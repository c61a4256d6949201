package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOracle(); err != nil {
		return err
	}
	c.normalizeOrganize()
	c.normalizeRename()
	c.normalizeNotifications()
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
	// The archive lives inside staging unless pointed elsewhere, so one drop
	// directory stays self-contained.
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		c.Paths.ArchiveDir = filepath.Join(c.Paths.StagingDir, defaultArchiveDirName)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MapFile) == "" {
		c.Paths.MapFile = filepath.Join(c.Paths.ArchiveDir, defaultMapFileName)
	}
	if c.Paths.MapFile, err = expandPath(c.Paths.MapFile); err != nil {
		return fmt.Errorf("paths.map_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeOracle() error {
	c.Oracle.APIKey = strings.TrimSpace(c.Oracle.APIKey)
	if c.Oracle.APIKey == "" {
		if value, ok := os.LookupEnv("MAGPIE_ORACLE_API_KEY"); ok {
			c.Oracle.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Oracle.APIKey = strings.TrimSpace(value)
		}
	}
	c.Oracle.BaseURL = strings.TrimSpace(c.Oracle.BaseURL)
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = defaultOracleBaseURL
	}
	c.Oracle.Model = strings.TrimSpace(c.Oracle.Model)
	if c.Oracle.Model == "" {
		c.Oracle.Model = defaultOracleModel
	}
	c.Oracle.Referer = strings.TrimSpace(c.Oracle.Referer)
	c.Oracle.Title = strings.TrimSpace(c.Oracle.Title)
	if c.Oracle.Title == "" {
		c.Oracle.Title = defaultOracleTitle
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = defaultOracleTimeout
	}
	if c.Oracle.RetryAttempts <= 0 {
		c.Oracle.RetryAttempts = defaultOracleAttempts
	}
	if c.Oracle.RetryDelaySeconds < 0 {
		c.Oracle.RetryDelaySeconds = defaultOracleRetryDelay
	}
	return nil
}

func (c *Config) normalizeOrganize() {
	if c.Organize.RecentWindowHours < 0 {
		c.Organize.RecentWindowHours = defaultRecentWindowHours
	}
}

func (c *Config) normalizeRename() {
	if c.Rename.BatchSize <= 0 {
		c.Rename.BatchSize = defaultRenameBatchSize
	}
	if c.Rename.BatchDelaySeconds < 0 {
		c.Rename.BatchDelaySeconds = defaultRenameBatchDelay
	}
	c.Rename.ProcessedMarker = strings.TrimSpace(c.Rename.ProcessedMarker)
	if c.Rename.ProcessedMarker == "" {
		c.Rename.ProcessedMarker = defaultProcessedMarker
	}
	if len(c.Rename.ImageExtensions) == 0 {
		c.Rename.ImageExtensions = defaultImageExtensions()
	} else {
		exts := make([]string, 0, len(c.Rename.ImageExtensions))
		seen := make(map[string]struct{}, len(c.Rename.ImageExtensions))
		for _, ext := range c.Rename.ImageExtensions {
			normalized := strings.ToLower(strings.TrimSpace(ext))
			if normalized == "" {
				continue
			}
			if !strings.HasPrefix(normalized, ".") {
				normalized = "." + normalized
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			exts = append(exts, normalized)
		}
		if len(exts) == 0 {
			exts = defaultImageExtensions()
		}
		c.Rename.ImageExtensions = exts
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
