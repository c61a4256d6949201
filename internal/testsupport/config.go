package testsupport

import (
	"path/filepath"
	"testing"

	"magpie/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Oracle.APIKey = "test"
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "staging", "Organized_Archive")
	cfgVal.Paths.MapFile = filepath.Join(base, "staging", "Organized_Archive", "extension_map.json")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Rename.BatchDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBatchSize overrides the image rename batch size on the test config.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rename.BatchSize = size
	}
}

// WithRecentWindowHours overrides the time-gating window on the test config.
func WithRecentWindowHours(hours int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Organize.RecentWindowHours = hours
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
