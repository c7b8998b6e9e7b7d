package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/runnerr0/tabtime/internal/storage"
)

// Execute implements the go-flags Commander interface for TimelineCommand.
func (c *TimelineCommand) Execute(args []string) error {
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

// executeWithStore prints the timeline from kv (for testing).
func (c *TimelineCommand) executeWithStore(kv storage.KV) error {
	since, err := parseDuration(c.Since)
	if err != nil {
		return err
	}
	hours := int(math.Ceil(since.Hours()))

	tabs, err := storage.NewSessionStore(kv, nil).BrowsingTimeline(context.Background(), hours)
	if err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tabs)
	}

	if len(tabs) == 0 {
		fmt.Printf("No visits in the last %s.\n", c.Since)
		return nil
	}
	for i, t := range tabs {
		if i > 0 {
			fmt.Println()
		}
		printTab(t, fmt.Sprintf("#%d tab %d", t.DisplayNumber, t.TabID))
	}
	return nil
}
