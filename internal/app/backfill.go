package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"alertwatch/internal/market"
	"alertwatch/internal/storage"
)

// Backfill loads the daily close series for one equity symbol into the
// observation history, so export has data before the engine's first tick.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	symbol, err := market.NormalizeSymbol(opts.Symbol)
	if err != nil {
		return err
	}
	if market.IsCryptoPair(symbol) {
		return errors.New("backfill supports equity tickers only")
	}

	rng := opts.Range
	if rng == "" {
		rng = a.Config.Sources.Yahoo.Range
	}

	yahoo := a.newYahoo()
	series, err := yahoo.Series(ctx, symbol, rng)
	if err != nil {
		return fmt.Errorf("load series for %s: %w", symbol, err)
	}
	if len(series) == 0 {
		a.Logger.Info().Str("symbol", symbol).Msg("no closes returned for range")
		return nil
	}

	if opts.DryRun {
		for _, point := range series {
			fmt.Fprintf(os.Stdout, "%s\t%s\n", point.At.UTC().Format("2006-01-02"), point.Close.StringFixed(4))
		}
		a.Logger.Info().Int("points", len(series)).Msg("dry run, nothing persisted")
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot backfill")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stored := 0
	for _, point := range series {
		values, marshalErr := json.Marshal(map[string]string{
			market.FieldValue: point.Close.String(),
		})
		if marshalErr != nil {
			return marshalErr
		}
		obs := storage.Observation{
			Symbol:     symbol,
			Metric:     string(market.MetricPrice),
			Timeframe:  "1d",
			Origin:     "yahoo",
			Values:     values,
			ObservedAt: point.At.UTC(),
		}
		if err := store.UpsertObservation(ctx, obs); err != nil {
			return fmt.Errorf("persist close at %s: %w", point.At.Format("2006-01-02"), err)
		}
		stored++
	}

	a.Logger.Info().Str("symbol", symbol).Int("stored", stored).Msg("backfill complete")
	return nil
}
