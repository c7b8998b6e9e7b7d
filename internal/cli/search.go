package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/runnerr0/tabtime/internal/model"
	"github.com/runnerr0/tabtime/internal/storage"
)

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	return c.executeWithStore(kv, args, time.Now)
}

// executeWithStore runs the search against kv (for testing).
func (c *SearchCommand) executeWithStore(kv storage.KV, args []string, clock func() time.Time) error {
	query := strings.ToLower(strings.Join(args, " "))

	dur, err := parseDuration(c.Since)
	if err != nil {
		return fmt.Errorf("invalid --since value %q: %w", c.Since, err)
	}
	now := clock()
	since := model.Millis(now.Add(-dur))

	if c.Category != "" {
		switch model.Category(c.Category) {
		case model.CategoryWork, model.CategorySocial, model.CategoryOther:
		default:
			return fmt.Errorf("unknown --category %q (use work, social or other)", c.Category)
		}
	}

	ctx := context.Background()
	store := storage.NewSessionStore(kv, clock)
	dates, err := store.Dates(ctx)
	if err != nil {
		return err
	}

	results := []model.URLVisit{}
	first := model.DateKey(now.Add(-dur))
	for _, d := range dates {
		if d < first {
			continue
		}
		sess, err := store.Session(ctx, d)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		for _, t := range sess.TabSessions {
			for _, v := range t.Visits {
				if v.StartTime >= since && c.matches(v, query) {
					results = append(results, v)
				}
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].StartTime > results[j].StartTime
	})
	if c.Limit > 0 && len(results) > c.Limit {
		results = results[:c.Limit]
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(query, results)
	}
	c.printHuman(query, results)
	return nil
}

func (c *SearchCommand) matches(v model.URLVisit, query string) bool {
	if c.Category != "" && string(v.Category) != c.Category {
		return false
	}
	if len(c.Domain) > 0 {
		ok := false
		for _, d := range c.Domain {
			d = strings.ToLower(strings.TrimPrefix(d, "www."))
			if v.Domain == d || strings.HasSuffix(v.Domain, "."+d) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(v.URL), query) ||
		strings.Contains(strings.ToLower(v.Title), query) ||
		strings.Contains(v.Domain, query)
}

func (c *SearchCommand) printHuman(query string, results []model.URLVisit) {
	if len(results) == 0 {
		if query != "" {
			fmt.Printf("No visits found for %q (since %s)\n", query, c.Since)
		} else {
			fmt.Printf("No visits found (since %s)\n", c.Since)
		}
		return
	}

	word := "visits"
	if len(results) == 1 {
		word = "visit"
	}
	if query != "" {
		fmt.Printf("Found %d %s for %q (since %s)\n\n", len(results), word, query, c.Since)
	} else {
		fmt.Printf("Found %d %s (since %s)\n\n", len(results), word, c.Since)
	}

	for i, v := range results {
		title := v.Title
		if title == "" {
			title = v.Domain
		}
		fmt.Printf("%d. %s (%s)\n", i+1, title, v.Domain)
		fmt.Printf("   %s\n", v.URL)
		ts := time.UnixMilli(v.StartTime).Local().Format("2006-01-02 15:04")
		fmt.Printf("   %s · %s · %s active · %s\n", ts, v.Category, formatMillis(v.ActiveTime), v.ID)
		if i < len(results)-1 {
			fmt.Println()
		}
	}
}

type jsonSearchOutput struct {
	Count   int              `json:"count"`
	Query   string           `json:"query"`
	Results []model.URLVisit `json:"results"`
}

func (c *SearchCommand) printJSON(query string, results []model.URLVisit) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonSearchOutput{Count: len(results), Query: query, Results: results})
}
