// Package cmd holds the updater CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stocktracker/internal/app"
	"stocktracker/internal/config"
	"stocktracker/internal/logger"
)

// cli carries the app built by the root command's pre-run hook to the
// subcommands.
type cli struct {
	app *app.App
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// Execute runs the root command with SIGINT and SIGTERM cancelling its
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	defer func() {
		if err := c.close(); err != nil {
			logger.Get().Warnw("Failed to close app", "error", err)
		}
		logger.Sync()
	}()

	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		logger.Get().Errorw("Updater failed", "error", err)
		return err
	}
	return nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "updater",
		Short: "Stock cache maintenance jobs",
		Long: `Stock cache maintenance jobs.

Commands:
    run         force-refresh every cached stock (what cron invokes)
    backfill    replace one stock's full daily history
    prune       delete history older than the retention window`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.Init(os.Getenv("ENV"))

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			c.app, err = app.New(cmd.Context(), cfg)
			return err
		},
	}

	root.AddCommand(newRunCmd(c))
	root.AddCommand(newBackfillCmd(c))
	root.AddCommand(newPruneCmd(c))
	return root
}
