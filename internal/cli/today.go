package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// Execute implements the go-flags Commander interface for TodayCommand.
func (c *TodayCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	return c.executeWithStore(kv)
}

// executeWithStore prints the requested day from kv (for testing).
func (c *TodayCommand) executeWithStore(kv storage.KV) error {
	date := c.Date
	if date == "" {
		date = model.DateKey(time.Now())
	} else if _, err := time.Parse(model.DateLayout, date); err != nil {
		return fmt.Errorf("--date must be YYYY-MM-DD, got %q", date)
	}

	sess, err := storage.NewSessionStore(kv, nil).Session(context.Background(), date)
	if errors.Is(err, storage.ErrNotFound) {
		if c.globals != nil && c.globals.JSON {
			return json.NewEncoder(os.Stdout).Encode(model.BrowsingSession{Date: date, TabSessions: []model.TabSession{}})
		}
		fmt.Printf("No activity recorded for %s.\n", date)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", date, err)
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	}

	tally := sess.Tally()
	fmt.Printf("Session %s  (%s focused, %d visits, %d domains)\n",
		sess.Date, formatMillis(tally.Focused), tally.Visits, tally.Domains)
	fmt.Printf("Active now: Work %s | Social %s | Other %s | %d URLs, %d domains\n",
		formatHours(sess.Stats.WorkTime), formatHours(sess.Stats.SocialTime), formatHours(sess.Stats.OtherTime),
		sess.Stats.TotalURLs, sess.Stats.UniqueDomains)

	for _, t := range sess.TabSessions {
		fmt.Println()
		printTab(t, fmt.Sprintf("Tab %d", t.TabID))
	}
	return nil
}

func printTab(t model.TabSession, label string) {
	state := "open"
	if t.IsClosed() {
		state = "closed"
	}
	fmt.Printf("%s (window %d) [%s] %s focused\n", label, t.WindowID, state, formatMillis(t.FocusedTime()))

	for _, v := range t.Visits {
		marker := " "
		if v.IsActive {
			marker = "*"
		}
		start := time.UnixMilli(v.StartTime).Local().Format("15:04:05")
		fmt.Printf(" %s %s  %-28s %-6s %-13s %s\n",
			marker, start, v.Domain, v.Category, v.NavigationSource.Type, formatMillis(v.ActiveTime))
	}
}
