package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stocktracker/internal/logger"
	"stocktracker/internal/schedule"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		loop        bool
		interval    time.Duration
		marketHours bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Force-refresh every cached stock",
		Long: `Force-refresh every cached stock in symbol order. A failing symbol is
logged and reported and the pass continues.

With --loop the pass repeats every --interval until interrupted. With
--market-hours, ticks outside Mon-Fri 09:00-16:30 America/New_York are
skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			updater := c.app.Services.Updater
			log := logger.Component("updater")

			pass := func(ctx context.Context) error {
				result, err := updater.UpdateAll(ctx)
				if result != nil {
					cmd.Printf("updated %d/%d stocks, %d failed\n", result.Updated, result.Total, len(result.Failed))
					for _, f := range result.Failed {
						cmd.Printf("  %s: %s %s\n", f.Symbol, f.Code, f.Message)
					}
				}
				return err
			}

			if !loop {
				return pass(cmd.Context())
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			err := schedule.NewRunner(interval, marketHours, log).Run(cmd.Context(), pass)
			if errors.Is(err, context.Canceled) {
				log.Info("Updater loop stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&loop, "loop", false, "repeat the pass on an interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "time between passes with --loop")
	cmd.Flags().BoolVar(&marketHours, "market-hours", false, "skip passes outside US market hours")
	return cmd
}
