package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/tabtime/internal/classify"
	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
	"github.com/runnerr0/tabtime/internal/tracker"
)

// ManualTabID is the tab that manually recorded visits are filed under.
const ManualTabID = 0

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if c.URL == "" {
		return fmt.Errorf("--url is required for add command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer kv.Close()

	return c.executeWithStore(cfg, kv, time.Now)
}

// executeWithStore records the visit into kv (for testing).
func (c *AddCommand) executeWithStore(cfg *config.Config, kv storage.KV, clock func() time.Time) error {
	if !model.IsTrackable(c.URL) {
		return fmt.Errorf("%q is not an http(s) page", c.URL)
	}
	filter, err := tracker.NewFilter(cfg.Denylist(), cfg.Capture.DenylistRegex)
	if err != nil {
		return err
	}
	if !filter.Allow(c.URL) {
		return fmt.Errorf("%s is excluded by the capture denylist", model.ExtractDomain(c.URL))
	}

	var spent time.Duration
	if c.Duration != "" {
		spent, err = time.ParseDuration(c.Duration)
		if err != nil || spent < 0 {
			return fmt.Errorf("invalid --duration %q", c.Duration)
		}
	}

	now := clock()
	end := model.Millis(now)
	domain := model.ExtractDomain(c.URL)
	class := classify.New(cfg.Classifier.WorkDomains, cfg.Classifier.SocialDomains).Classify(c.URL, domain)

	visit := model.URLVisit{
		ID:                 uuid.NewString(),
		URL:                c.URL,
		Domain:             domain,
		Title:              c.Title,
		StartTime:          end - spent.Milliseconds(),
		EndTime:            &end,
		ActiveTime:         spent.Milliseconds(),
		TabID:              c.Tab,
		WindowID:           c.Window,
		Category:           class.Category,
		CategoryConfidence: class.Confidence,
		NavigationSource:   model.NavigationSource{Type: model.NavTyped},
	}

	store := storage.NewSessionStore(kv, clock)
	if err := store.AddURLVisit(context.Background(), visit); err != nil {
		return fmt.Errorf("add visit: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"id":       visit.ID,
			"domain":   visit.Domain,
			"category": visit.Category,
			"date":     model.DateKey(now),
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("Recorded %s (%s, %s) on tab %d: %s\n",
		visit.Domain, visit.Category, formatMillis(visit.ActiveTime), visit.TabID, visit.ID)
	return nil
}
