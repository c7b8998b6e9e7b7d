package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tabtime/config.yaml"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
	BackendMemory = "memory"
)

// Config holds all tabtime configuration.
type Config struct {
	Tracking   TrackingConfig   `yaml:"tracking"`
	Capture    CaptureConfig    `yaml:"capture"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Storage    StorageConfig    `yaml:"storage"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type TrackingConfig struct {
	RestartPolicy           string `yaml:"restart_policy"`
	PendingSourceCapacity   int    `yaml:"pending_source_capacity"`
	PendingSourceTTLSeconds int    `yaml:"pending_source_ttl_seconds"`
	EventBuffer             int    `yaml:"event_buffer"`
}

type CaptureConfig struct {
	DenylistDomains    []string `yaml:"denylist_domains"`
	DenylistRegex      []string `yaml:"denylist_regex"`
	UseDefaultDenylist bool     `yaml:"use_default_denylist"`
}

type ClassifierConfig struct {
	WorkDomains   []string `yaml:"work_domains"`
	SocialDomains []string `yaml:"social_domains"`
}

type StorageConfig struct {
	Backend           string `yaml:"backend"`
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	DuckDBFile        string `yaml:"duckdb_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type DaemonConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AuthToken      string   `yaml:"auth_token"`
	MaxRequestSize int      `yaml:"max_request_size"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML or
// holds invalid values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Tracking.RestartPolicy {
	case "", "close", "leave":
	default:
		return fmt.Errorf("tracking.restart_policy: unknown policy %q", c.Tracking.RestartPolicy)
	}
	if c.Tracking.PendingSourceCapacity <= 0 {
		return fmt.Errorf("tracking.pending_source_capacity must be positive")
	}
	if c.Tracking.EventBuffer < 0 {
		return fmt.Errorf("tracking.event_buffer must not be negative")
	}
	switch c.Storage.Backend {
	case BackendSQLite, BackendDuckDB, BackendMemory:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port: %d out of range", c.Daemon.Port)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// Denylist returns the configured denylisted domains, extended with the
// curated defaults when enabled.
func (c *Config) Denylist() []string {
	domains := append([]string{}, c.Capture.DenylistDomains...)
	if c.Capture.UseDefaultDenylist {
		domains = append(domains, DefaultDenylistDomains()...)
	}
	return domains
}

// DataDir returns the storage directory with ~ expanded.
func (c *Config) DataDir() (string, error) {
	return ExpandPath(c.Storage.Path)
}

// DatabasePath returns the database file for the configured backend. It is
// empty for the memory backend.
func (c *Config) DatabasePath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	switch c.Storage.Backend {
	case BackendDuckDB:
		return filepath.Join(dir, c.Storage.DuckDBFile), nil
	case BackendMemory:
		return "", nil
	default:
		return filepath.Join(dir, c.Storage.SQLiteFile), nil
	}
}

// LogPath returns the log file path, or "" when logging goes to stderr.
// Relative names live in the storage directory.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File == "" {
		return "", nil
	}
	p, err := ExpandPath(c.Logging.File)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p), nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
