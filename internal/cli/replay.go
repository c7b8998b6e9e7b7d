package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/runnerr0/tabtime/internal/config"
	"github.com/runnerr0/tabtime/internal/logging"
	"github.com/runnerr0/tabtime/internal/storage"
	"github.com/runnerr0/tabtime/internal/tracker"
)

// replayRecord is one line of a replay log: a host event and the time it
// was observed, in milliseconds since the Unix epoch.
type replayRecord struct {
	At int64 `json:"at"`
	tracker.HostEvent
}

type replayResult struct {
	Events  int `json:"events"`
	Skipped int `json:"skipped"`
}

// replayClock only moves forward.
type replayClock struct{ t time.Time }

func (c *replayClock) Now() time.Time { return c.t }

func (c *replayClock) set(ms int64) {
	if t := time.UnixMilli(ms); t.After(c.t) {
		c.t = t
	}
}

// Execute implements the go-flags Commander interface for ReplayCommand.
func (c *ReplayCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}

	kv := c.kv
	if kv == nil {
		kv, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()
	}

	in := io.Reader(os.Stdin)
	if c.File != "" && c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return fmt.Errorf("open replay log: %w", err)
		}
		defer f.Close()
		in = f
	}

	return c.replay(cfg, kv, in)
}

func (c *ReplayCommand) replay(cfg *config.Config, kv storage.KV, in io.Reader) error {
	verbose := c.globals != nil && c.globals.Verbose
	logger, closer, err := newLogger(cfg, verbose, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	if !verbose {
		logger = logging.Discard()
	}

	ctx := context.Background()
	clock := &replayClock{}
	sessions := storage.NewSessionStore(kv, clock.Now)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		router *tracker.Router
		res    replayResult
		line   int
	)
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.At <= 0 {
			fmt.Fprintf(os.Stderr, "line %d: skipped: not a timestamped event\n", line)
			res.Skipped++
			continue
		}
		clock.set(rec.At)

		if router == nil {
			router, err = newRouter(cfg, sessions, logger, clock.Now)
			if err != nil {
				return err
			}
			if err := router.Start(ctx); err != nil {
				return err
			}
		}

		if err := router.Handle(ctx, rec.HostEvent); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: skipped: %v\n", line, err)
			res.Skipped++
			continue
		}
		res.Events++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read replay log: %w", err)
	}

	if router != nil {
		if err := router.Shutdown(ctx); err != nil {
			return fmt.Errorf("flush active time: %w", err)
		}
	}

	if c.globals != nil && c.globals.JSON {
		return json.NewEncoder(os.Stdout).Encode(res)
	}
	fmt.Printf("Replayed %d events (%d skipped).\n", res.Events, res.Skipped)
	return nil
}
