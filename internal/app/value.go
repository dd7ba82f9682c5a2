package app

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"alertwatch/internal/engine"
	"alertwatch/internal/market"
	"alertwatch/internal/rules"
)

// Value resolves one request on demand and prints the result fields.
func (a *App) Value(ctx context.Context, opts ValueOptions) error {
	metric := opts.Metric
	if metric == "" {
		metric = string(market.MetricPrice)
	}
	parsedMetric, err := market.ParseMetric(metric)
	if err != nil {
		return err
	}

	req := market.Request{
		Symbol: opts.Symbol,
		Metric: parsedMetric,
		Params: market.Params(opts.Params),
	}
	if opts.Timeframe != "" {
		tf, tfErr := market.ParseTimeframe(opts.Timeframe)
		if tfErr != nil {
			return tfErr
		}
		req.Timeframe = tf
	}

	eng := engine.New(rules.NewStore(a.Logger), a.newFallback(), nil, engine.Options{}, a.Logger)
	res, err := eng.CurrentValue(ctx, req)
	if err != nil {
		return err
	}

	if opts.Field != "" {
		v, ok := res.Value(opts.Field)
		if !ok {
			return fmt.Errorf("result from %s carries no field %q", res.Origin, opts.Field)
		}
		fmt.Fprintln(os.Stdout, v.String())
		return nil
	}

	fields := make([]string, 0, len(res.Values))
	for field := range res.Values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "symbol\t%s\n", res.Request.Symbol)
	fmt.Fprintf(writer, "origin\t%s\n", res.Origin)
	for _, field := range fields {
		fmt.Fprintf(writer, "%s\t%s\n", field, res.Values[field].String())
	}
	writer.Flush()
	return nil
}
