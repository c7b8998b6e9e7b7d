package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/runnerr0/tabtime/internal/classify"
	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/logging"
	"github.com/runnerr0/tabtime/internal/storage"
	"github.com/runnerr0/tabtime/internal/tracker"
)

// loadConfig reads --config when given, otherwise the default path,
// writing defaults there on first use.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.Load(globals.Config)
	}
	return config.LoadOrCreate()
}

// openStore opens the KV backend selected in the config and runs its
// migrations.
func openStore(cfg *config.Config) (storage.KV, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return storage.NewMemoryStore(), nil
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if cfg.Storage.Backend == config.BackendDuckDB {
		return storage.OpenSQLStore(storage.DialectDuckDB, dbPath)
	}
	return storage.OpenSQLStore(storage.DialectSQLite, dbPath,
		storage.WithJournalMode(cfg.Storage.SQLiteJournalMode))
}

// newLogger builds the logger described by the config. Verbose forces
// debug level.
func newLogger(cfg *config.Config, verbose bool, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	path, err := cfg.LogPath()
	if err != nil {
		return nil, nil, err
	}
	return logging.New(logCfg, path, fallback)
}

// newRouter wires the tracker components from the config.
func newRouter(cfg *config.Config, sessions *storage.SessionStore, logger *slog.Logger, clock func() time.Time) (*tracker.Router, error) {
	policy, err := storage.ParseRestartPolicy(cfg.Tracking.RestartPolicy)
	if err != nil {
		return nil, err
	}
	filter, err := tracker.NewFilter(cfg.Denylist(), cfg.Capture.DenylistRegex)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.Tracking.PendingSourceTTLSeconds) * time.Second

	return tracker.NewRouter(sessions, tracker.Options{
		Resolver:      tracker.NewResolver(cfg.Tracking.PendingSourceCapacity, ttl),
		Classifier:    classify.New(cfg.Classifier.WorkDomains, cfg.Classifier.SocialDomains),
		Filter:        filter,
		Logger:        logger,
		Clock:         clock,
		RestartPolicy: policy,
	}), nil
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use h, d or w suffix)", s)
	}
}

// formatMillis formats an amount of active time like "1h 02m", "4m 10s".
func formatMillis(ms int64) string {
	d := (time.Duration(ms) * time.Millisecond).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatHours formats a fractional hour count from Stats.
func formatHours(h float64) string {
	return formatMillis(int64(h * float64(time.Hour/time.Millisecond)))
}
