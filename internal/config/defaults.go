package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			RestartPolicy:           "close",
			PendingSourceCapacity:   256,
			PendingSourceTTLSeconds: 300,
			EventBuffer:             1024,
		},
		Capture: CaptureConfig{
			DenylistDomains:    []string{},
			DenylistRegex:      []string{},
			UseDefaultDenylist: true,
		},
		Classifier: ClassifierConfig{
			WorkDomains:   []string{},
			SocialDomains: []string{},
		},
		Storage: StorageConfig{
			Backend:           BackendSQLite,
			Path:              "~/.config/tabtime",
			SQLiteFile:        "tabtime.db",
			DuckDBFile:        "tabtime.duckdb",
			SQLiteJournalMode: "wal",
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8722,
			AuthToken:      "",
			MaxRequestSize: 1048576,
			AllowedOrigins: []string{"chrome-extension://*", "moz-extension://*"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
