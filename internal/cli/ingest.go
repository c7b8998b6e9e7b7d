package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/tabtime/internal/daemon"
	"github.com/runnerr0/tabtime/internal/storage"
)

// Execute implements the go-flags Commander interface for IngestCommand.
// It runs the daemon in the foreground until interrupted.
func (c *IngestCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Daemon.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}

	logger, closer, err := newLogger(cfg, c.globals != nil && c.globals.Verbose, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	sessions := storage.NewSessionStore(kv, nil)
	router, err := newRouter(cfg, sessions, logger, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting tabtime daemon", "backend", cfg.Storage.Backend, "restart_policy", cfg.Tracking.RestartPolicy)
	return daemon.Run(ctx, cfg.Daemon, cfg.Tracking.EventBuffer, router, sessions, logger, c.version)
}
