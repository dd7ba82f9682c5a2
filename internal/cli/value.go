package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alertwatch/internal/app"
)

var (
	valueMetric    string
	valueTimeframe string
	valueField     string
	valueParams    []string
)

var valueCmd = &cobra.Command{
	Use:   "value SYMBOL",
	Short: "Fetch the current value of a symbol's metric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(valueParams)
		if err != nil {
			return err
		}

		opts := app.ValueOptions{
			Symbol:    args[0],
			Metric:    valueMetric,
			Timeframe: valueTimeframe,
			Field:     valueField,
			Params:    params,
		}
		return getApp().Value(cmd.Context(), opts)
	},
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func init() {
	valueCmd.Flags().StringVar(&valueMetric, "metric", "PRICE", "Metric to fetch (PRICE, RSI, MACD, BBANDS, SMA, EMA)")
	valueCmd.Flags().StringVar(&valueTimeframe, "timeframe", "", "Candle interval for indicator metrics (e.g. 1h)")
	valueCmd.Flags().StringVar(&valueField, "field", "", "Print a single result field instead of all")
	valueCmd.Flags().StringArrayVar(&valueParams, "param", nil, "Indicator parameter as key=value (repeatable)")
}
