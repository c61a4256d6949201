package config

const (
	defaultStagingDir        = "~/Downloads"
	defaultArchiveDirName    = "Organized_Archive"
	defaultLogDir            = "~/.local/share/magpie/logs"
	defaultMapFileName       = "extension_map.json"
	defaultOracleBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultOracleModel       = "google/gemini-2.5-flash"
	defaultOracleTitle       = "Magpie Organizer"
	defaultOracleTimeout     = 60
	defaultOracleAttempts    = 3
	defaultOracleRetryDelay  = 10
	defaultRecentWindowHours = 24
	defaultRenameBatchSize   = 10
	defaultRenameBatchDelay  = 5
	defaultProcessedMarker   = "_DESC"
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

func defaultImageExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".webp"}
}

// Default returns a Config populated with repository defaults. ArchiveDir and
// MapFile are left empty here and derived from the staging directory during
// normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Oracle: Oracle{
			BaseURL:           defaultOracleBaseURL,
			Model:             defaultOracleModel,
			Title:             defaultOracleTitle,
			TimeoutSeconds:    defaultOracleTimeout,
			RetryAttempts:     defaultOracleAttempts,
			RetryDelaySeconds: defaultOracleRetryDelay,
		},
		Organize: Organize{
			RecentWindowHours: defaultRecentWindowHours,
		},
		Rename: Rename{
			BatchSize:         defaultRenameBatchSize,
			BatchDelaySeconds: defaultRenameBatchDelay,
			ProcessedMarker:   defaultProcessedMarker,
			ImageExtensions:   defaultImageExtensions(),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
