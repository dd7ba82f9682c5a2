package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"alertwatch/internal/app"
)

var (
	simulateOwner      string
	simulateSymbol     string
	simulateMetric     string
	simulateComparator string
	simulateThreshold  float64
	simulateBaseline   float64
	simulateValue      float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run the alert pipeline once against a fixed observed value",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol is required")
		}

		opts := app.SimulateOptions{
			Owner:      simulateOwner,
			Symbol:     simulateSymbol,
			Metric:     simulateMetric,
			Comparator: simulateComparator,
			Threshold:  simulateThreshold,
			Baseline:   simulateBaseline,
			Value:      simulateValue,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOwner, "owner", "", "Owner of the simulated rule")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Symbol the rule watches")
	simulateCmd.Flags().StringVar(&simulateMetric, "metric", "PRICE", "Metric of the rule")
	simulateCmd.Flags().StringVar(&simulateComparator, "comparator", "ABOVE", "Comparator (ABOVE, BELOW, PCTCHG, 24HRCHG)")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 0, "Rule threshold")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "Baseline for PCTCHG rules")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "Observed value to evaluate against")
}
