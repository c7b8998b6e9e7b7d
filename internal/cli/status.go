package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string `json:"version"`
	Backend           string `json:"backend"`
	DatabasePath      string `json:"database_path,omitempty"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
	Days              int    `json:"days"`
	OldestDay         string `json:"oldest_day,omitempty"`
	NewestDay         string `json:"newest_day,omitempty"`
	TodayURLs         int    `json:"today_urls"`
	TodayDomains      int    `json:"today_domains"`
	TodayActiveMillis int64  `json:"today_active_ms"`
	RestartPolicy     string `json:"restart_policy"`
	DaemonAddr        string `json:"daemon_addr"`
	DaemonRunning     bool   `json:"daemon_running"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	return c.executeWithStore(cfg, kv)
}

// executeWithStore runs status against a provided config and store (for testing).
func (c *StatusCommand) executeWithStore(cfg *config.Config, kv storage.KV) error {
	ctx := context.Background()
	sessions := storage.NewSessionStore(kv, nil)

	out := statusJSON{
		Version:       c.version,
		Backend:       cfg.Storage.Backend,
		RestartPolicy: cfg.Tracking.RestartPolicy,
		DaemonAddr:    net.JoinHostPort(cfg.Daemon.Host, strconv.Itoa(cfg.Daemon.Port)),
	}

	if dbPath, err := cfg.DatabasePath(); err == nil && dbPath != "" {
		out.DatabasePath = dbPath
		if info, err := os.Stat(dbPath); err == nil {
			out.DatabaseSizeBytes = info.Size()
		}
	}

	dates, err := sessions.Dates(ctx)
	if err != nil {
		return fmt.Errorf("list days: %w", err)
	}
	out.Days = len(dates)
	if len(dates) > 0 {
		out.OldestDay = dates[0]
		out.NewestDay = dates[len(dates)-1]
	}

	// Read-only: status must not create today's record.
	today, err := sessions.Session(ctx, model.DateKey(time.Now()))
	if err == nil {
		tally := today.Tally()
		out.TodayURLs = tally.Visits
		out.TodayDomains = tally.Domains
		out.TodayActiveMillis = tally.Focused
	}

	out.DaemonRunning = checkDaemon(out.DaemonAddr)

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	c.printStatusHuman(out)
	return nil
}

func (c *StatusCommand) printStatusHuman(out statusJSON) {
	fmt.Println("tabtime Status")
	fmt.Println("==============")
	fmt.Printf("Version:       %s\n", out.Version)
	if out.DatabasePath != "" {
		fmt.Printf("Database:      %s (%s, %s)\n", out.DatabasePath, out.Backend, formatBytes(out.DatabaseSizeBytes))
	} else {
		fmt.Printf("Database:      %s\n", out.Backend)
	}
	fmt.Printf("Days stored:   %s\n", formatNumber(int64(out.Days)))
	if out.Days > 0 {
		fmt.Printf("Range:         %s .. %s\n", out.OldestDay, out.NewestDay)
	}
	fmt.Printf("Restart:       %s\n", out.RestartPolicy)

	fmt.Println()
	fmt.Printf("Today:         %d URLs, %d domains, %s active\n",
		out.TodayURLs, out.TodayDomains, formatMillis(out.TodayActiveMillis))

	fmt.Println()
	if out.DaemonRunning {
		fmt.Printf("Daemon:        running (%s)\n", out.DaemonAddr)
	} else {
		fmt.Printf("Daemon:        not running (%s)\n", out.DaemonAddr)
	}
}

// checkDaemon attempts an HTTP GET to the daemon's status endpoint.
// Returns true if the daemon responds within 1 second.
func checkDaemon(addr string) bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
