package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd(c *cli) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than the retention window",
		Long: `Delete daily bars dated before now minus --retention. Without the flag
HISTORY_RETENTION is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			if !cmd.Flags().Changed("retention") {
				retention = a.Config.HistoryRetain
			}
			if retention <= 0 {
				return fmt.Errorf("--retention must be positive")
			}

			cutoff := time.Now().UTC().Add(-retention)
			n, err := a.Services.Stocks.PruneHistory(cutoff)
			if err != nil {
				return err
			}
			cmd.Printf("pruned %d history rows before %s\n", n, cutoff.Format("2006-01-02"))
			return nil
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "keep history newer than this (e.g. 17520h)")
	return cmd
}
