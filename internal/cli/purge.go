package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runnerr0/tabtime/internal/storage"
)

// setKV allows tests to inject a store.
func (c *PurgeCommand) setKV(kv storage.KV) {
	c.kv = kv
}

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	return c.execute(os.Stdin)
}

func (c *PurgeCommand) execute(stdin io.Reader) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL tabtime data.")
		fmt.Println("  - Every daily browsing session")
		fmt.Println("  - All visits, navigation sources and active time")
		fmt.Println()
		fmt.Println("This action cannot be undone.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
	}

	// Open or use injected store
	kv := c.kv
	if kv == nil {
		cfg, err := loadConfig(c.globals)
		if err != nil {
			return err
		}
		kv, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()
	}

	n, err := storage.NewSessionStore(kv, nil).Purge(context.Background())
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	// Output
	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"purged": true,
			"days":   n,
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	fmt.Printf("Purged %d days of data. tabtime is empty.\n", n)
	return nil
}
