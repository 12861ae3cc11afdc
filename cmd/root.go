// Package cmd wires the pgmirror CLI: configuration loading, logger setup
// and the cobra command tree. main.go stays a minimal entry point.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koopa0/pgmirror/internal/config"
	"github.com/koopa0/pgmirror/internal/log"
	"github.com/koopa0/pgmirror/internal/mirror"
	"github.com/koopa0/pgmirror/internal/router"
)

// Execute runs the root command. It is the single entry point called from
// main().
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "pgmirror",
		Short: "Resilient PostgreSQL access with a local SQLite fallback mirror",
		Long: `pgmirror runs queries against a PostgreSQL primary with bounded retries.
When the primary stays unreachable, reads are served from a local SQLite
mirror rebuilt from a pg_dump-format text dump.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	deps := &dependencies{verbose: &verbose}
	root.AddCommand(
		newMigrateCmd(deps),
		newSyncCmd(deps),
		newQueryCmd(deps),
		newSimilarCmd(deps),
		newPingCmd(deps),
		newVersionCmd(),
	)
	return root
}

// dependencies defers config and logger construction until a subcommand
// actually runs, so version/help work without a valid environment.
type dependencies struct {
	verbose *bool
}

func (d *dependencies) load() (*config.Config, log.Logger, error) {
	level := slog.LevelInfo
	if d.verbose != nil && *d.verbose {
		level = slog.LevelDebug
	}
	logger := log.NewConsole(level)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, logger, nil
}

// newMirror builds the fallback mirror from configuration, or nil when the
// mirror is disabled.
func newMirror(cfg *config.Config, logger log.Logger) *mirror.Mirror {
	if !cfg.MirrorEnabled {
		return nil
	}
	return mirror.New(mirror.Config{
		Path:         cfg.MirrorPath,
		DumpPath:     cfg.MirrorDumpPath,
		Tables:       cfg.MirrorTables,
		AutoSync:     cfg.MirrorAutoSync,
		SyncInterval: cfg.SyncInterval(),
	}, logger)
}

// newRouter connects the primary pool and assembles the full router.
// Callers must Close the returned router.
func newRouter(ctx context.Context, cfg *config.Config, logger log.Logger) (*router.Router, error) {
	pool, err := router.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}

	var store router.MirrorStore
	if m := newMirror(cfg, logger); m != nil {
		store = m
	}

	return router.New(pool, store, router.Config{
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval(),
	}, logger), nil
}
