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

// chainLimit bounds how far open walks back through navigation sources.
const chainLimit = 100

// Execute implements the go-flags Commander interface for OpenCommand.
func (c *OpenCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for open command")
	}

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

// executeWithStore prints the visit and its navigation chain from kv (for testing).
func (c *OpenCommand) executeWithStore(kv storage.KV) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for open command")
	}
	ctx := context.Background()
	store := storage.NewSessionStore(kv, nil)

	dates := []string{c.Date}
	if c.Date == "" {
		all, err := store.Dates(ctx)
		if err != nil {
			return err
		}
		dates = reversed(all)
	}

	visit, date, err := findVisit(ctx, store, c.ID, dates)
	if err != nil {
		return err
	}
	chain := sourceChain(ctx, store, *visit, date)

	if c.globals != nil && c.globals.JSON {
		c.Format = "json"
	}

	switch c.Format {
	case "url":
		fmt.Println(visit.URL)
	case "json":
		out := struct {
			Date  string           `json:"date"`
			Visit model.URLVisit   `json:"visit"`
			Chain []model.URLVisit `json:"chain"`
		}{date, *visit, chain}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "md", "":
		printVisitMarkdown(date, *visit, chain)
	default:
		return fmt.Errorf("unknown format %q (use md, url or json)", c.Format)
	}
	return nil
}

// findVisit looks up a visit id in the given days, in order.
func findVisit(ctx context.Context, store *storage.SessionStore, id string, dates []string) (*model.URLVisit, string, error) {
	for _, d := range dates {
		sess, err := store.Session(ctx, d)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		if v := visitByID(sess, id); v != nil {
			return v, d, nil
		}
	}
	return nil, "", fmt.Errorf("visit not found: %s", id)
}

func visitByID(sess *model.BrowsingSession, id string) *model.URLVisit {
	for i := range sess.TabSessions {
		if v := sess.TabSessions[i].Visit(id); v != nil {
			return v
		}
	}
	return nil
}

// sourceChain follows SourceNodeID links back from v, nearest first. A
// link that is not in v's day is looked up in the day before, where a
// visit carried over midnight came from.
func sourceChain(ctx context.Context, store *storage.SessionStore, v model.URLVisit, date string) []model.URLVisit {
	chain := []model.URLVisit{}
	seen := map[string]bool{v.ID: true}

	for next := v.NavigationSource.SourceNodeID; next != "" && len(chain) < chainLimit; {
		if seen[next] {
			break
		}
		seen[next] = true

		src, d, err := findVisit(ctx, store, next, []string{date, previousDate(date)})
		if err != nil {
			// The source day may have been pruned.
			break
		}
		chain = append(chain, *src)
		date = d
		next = src.NavigationSource.SourceNodeID
	}
	return chain
}

func previousDate(date string) string {
	t, err := time.ParseInLocation(model.DateLayout, date, time.Local)
	if err != nil {
		return ""
	}
	return model.DateKey(t.AddDate(0, 0, -1))
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func printVisitMarkdown(date string, v model.URLVisit, chain []model.URLVisit) {
	title := v.Title
	if title == "" {
		title = v.Domain
	}
	fmt.Printf("# %s\n\n", title)
	fmt.Printf("- **URL:** %s\n", v.URL)
	fmt.Printf("- **Domain:** %s (%s, %.1f)\n", v.Domain, v.Category, v.CategoryConfidence)
	fmt.Printf("- **Date:** %s\n", date)
	fmt.Printf("- **Started:** %s\n", time.UnixMilli(v.StartTime).Local().Format("15:04:05"))
	if v.EndTime != nil {
		fmt.Printf("- **Ended:** %s\n", time.UnixMilli(*v.EndTime).Local().Format("15:04:05"))
	}
	fmt.Printf("- **Active:** %s of %s\n", formatMillis(v.ActiveTime), formatMillis(v.Duration))
	fmt.Printf("- **Tab:** %d (window %d)\n", v.TabID, v.WindowID)
	fmt.Printf("- **Reached via:** %s\n", v.NavigationSource.Type)
	fmt.Printf("- **ID:** %s\n", v.ID)

	if len(chain) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("## Navigation chain")
	fmt.Println()
	for i, s := range chain {
		fmt.Printf("%d. %s  %s (tab %d, %s)\n", i+1, s.Domain, s.URL, s.TabID, s.NavigationSource.Type)
	}
}
