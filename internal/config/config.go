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

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
	MapFile    string `toml:"map_file"`
}

// Oracle contains connection settings for the classification oracle.
type Oracle struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RetryAttempts     int    `toml:"retry_attempts"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
}

// Organize contains settings for the staging sort pass.
type Organize struct {
	// RecentWindowHours is how long a file must sit unmodified in staging
	// before a gated run will touch it. Zero disables the gate.
	RecentWindowHours int `toml:"recent_window_hours"`
}

// Rename contains settings for the image describe-and-rename pass.
type Rename struct {
	Enabled           bool     `toml:"enabled"`
	BatchSize         int      `toml:"batch_size"`
	BatchDelaySeconds int      `toml:"batch_delay_seconds"`
	ProcessedMarker   string   `toml:"processed_marker"`
	ImageExtensions   []string `toml:"image_extensions"`
}

// PDFSort contains settings for the Documents sub-sort pass.
type PDFSort struct {
	Enabled bool `toml:"enabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for magpie.
//
// Configuration sections by subsystem:
//   - Paths: staging directory, archive root, log directory, category map file
//   - Oracle: classification oracle connection and retry policy
//   - Organize: staging sort pass behaviour
//   - Rename: image describe-and-rename pass behaviour
//   - PDFSort: Documents sub-sort pass behaviour
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Oracle        Oracle        `toml:"oracle"`
	Organize      Organize      `toml:"organize"`
	Rename        Rename        `toml:"rename"`
	PDFSort       PDFSort       `toml:"pdf_sort"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	// SourcePath records where this configuration was loaded from, empty when
	// defaults were used. The sorter must never move the live config file.
	SourcePath string `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/magpie/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	if exists {
		cfg.SourcePath = resolvedPath
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
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

	projectPath, err := filepath.Abs("magpie.toml")
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

// EnsureDirectories creates the directories a run needs before it starts.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
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

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ResolvePath reports where configuration would be loaded from for the given
// override path, and whether a file currently exists there.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// OracleConfig contains the oracle connection settings in their resolved form.
type OracleConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Referer           string
	Title             string
	TimeoutSeconds    int
	RetryAttempts     int
	RetryDelaySeconds int
}

// GetOracle returns the resolved oracle connection settings.
func (c *Config) GetOracle() OracleConfig {
	return OracleConfig{
		APIKey:            strings.TrimSpace(c.Oracle.APIKey),
		BaseURL:           strings.TrimSpace(c.Oracle.BaseURL),
		Model:             strings.TrimSpace(c.Oracle.Model),
		Referer:           strings.TrimSpace(c.Oracle.Referer),
		Title:             strings.TrimSpace(c.Oracle.Title),
		TimeoutSeconds:    c.Oracle.TimeoutSeconds,
		RetryAttempts:     c.Oracle.RetryAttempts,
		RetryDelaySeconds: c.Oracle.RetryDelaySeconds,
	}
}
