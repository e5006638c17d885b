package cmd

import (
	"github.com/spf13/cobra"

	"stocktracker/internal/marketdata"
)

func newBackfillCmd(c *cli) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "backfill SYMBOL",
		Short: "Replace one stock's full daily history",
		Example: `  updater backfill AAPL
  updater backfill CL=F --period 5y`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := marketdata.ParsePeriod(period)
			if err != nil {
				return err
			}

			bars, err := c.app.Services.Stocks.Backfill(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			cmd.Printf("backfilled %s with %d bars (%s)\n", args[0], bars, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&period, "period", string(marketdata.DefaultBackfill), "history period (5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max)")
	return cmd
}
