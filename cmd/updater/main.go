// Command updater refreshes the stock cache outside the API server.
//
// Usage:
//
//	updater run                                 # one forced pass over every stock
//	updater run --loop --interval 15m --market-hours
//	updater backfill AAPL --period 5y
//	updater prune --retention 17520h
package main

import (
	"os"

	"stocktracker/cmd/updater/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
