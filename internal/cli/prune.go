package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/runnerr0/tabtime/internal/storage"
)

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	if c.OlderThan == "" {
		return fmt.Errorf("--older-than is required for prune command")
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

	return c.executeWithStore(kv, time.Now)
}

// executeWithStore deletes old day records from kv (for testing).
func (c *PruneCommand) executeWithStore(kv storage.KV, clock func() time.Time) error {
	d, err := parseDuration(c.OlderThan)
	if err != nil {
		return fmt.Errorf("invalid --older-than value %q: %w", c.OlderThan, err)
	}
	days := int(math.Ceil(d.Hours() / 24))

	cutoff := storage.CutoffDate(clock(), days)
	pruned, err := storage.NewSessionStore(kv, clock).PruneBefore(context.Background(), cutoff, c.DryRun)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"cutoff":  cutoff,
			"dry_run": c.DryRun,
			"days":    pruned,
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	verb := "Pruned"
	if c.DryRun {
		verb = "Would prune"
	}
	fmt.Printf("%s %d days older than %s.\n", verb, len(pruned), cutoff)
	for _, d := range pruned {
		fmt.Printf("  %s\n", d)
	}
	return nil
}
