package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recently fired alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tOwner\tRule\tSymbol\tMetric\tComparator\tThreshold\tObserved")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t#%d\t%s\t%s\t%s\t%s\t%s\n",
			alert.FiredAt.UTC().Format(time.RFC3339),
			alert.Owner,
			alert.RuleID,
			alert.Symbol,
			alert.Metric,
			alert.Comparator,
			alert.Threshold.StringFixed(4),
			alert.Observed.StringFixed(4),
		)
	}

	writer.Flush()
	return nil
}
