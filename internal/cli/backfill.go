package cli

import (
	"github.com/spf13/cobra"

	"alertwatch/internal/app"
)

var (
	backfillSymbol string
	backfillRange  string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill daily closes into the observation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			Symbol: backfillSymbol,
			Range:  backfillRange,
			DryRun: backfillDryRun,
		}
		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillSymbol, "symbol", "", "Equity ticker to backfill")
	backfillCmd.Flags().StringVar(&backfillRange, "range", "", "History range, e.g. 5d, 1mo, 1y (defaults to config)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Print the series without writing to storage")
}
