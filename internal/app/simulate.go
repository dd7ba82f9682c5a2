package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/alerting"
	"alertwatch/internal/config"
	"alertwatch/internal/engine"
	"alertwatch/internal/market"
	"alertwatch/internal/rules"
)

// SimulateAlert runs the full evaluation pipeline once against a fixed
// observed value, exercising rule validation, the predicate, and the
// notifier without touching any network source.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	value, err := rules.ThresholdFromFloat(opts.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	rc := config.RuleConfig{
		Owner:      opts.Owner,
		Symbol:     opts.Symbol,
		Metric:     opts.Metric,
		Comparator: opts.Comparator,
		Threshold:  opts.Threshold,
		Baseline:   opts.Baseline,
	}
	if rc.Owner == "" {
		rc.Owner = "simulate"
	}
	rule, err := buildRule(rc)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		notifier = &writerNotifier{}
	}

	resolver := &staticResolver{value: value}
	store := rules.NewStore(a.Logger)
	eng := engine.New(store, resolver, notifier, engine.Options{}, a.Logger)

	id, err := eng.Submit(rule)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("id", id).Msg("simulated rule submitted")

	if err := eng.Tick(ctx, time.Now().UTC()); err != nil {
		return err
	}

	remaining, err := eng.List(rule.Owner, rule.Symbol)
	if err != nil {
		return err
	}
	if len(remaining) > 0 && remaining[0].LastFiredAt == nil {
		return errors.New("rule did not fire for the given value")
	}
	return nil
}

// staticResolver resolves every request to one fixed value.
type staticResolver struct {
	value decimal.Decimal
}

func (s *staticResolver) Resolve(_ context.Context, req market.Request) (market.FetchResult, error) {
	return market.FetchResult{
		Request: req,
		Origin:  "simulated",
		Values: map[string]decimal.Decimal{
			market.FieldValue:         s.value,
			market.FieldChangePercent: s.value,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// writerNotifier prints rendered alerts to stdout when no delivery
// channel is configured.
type writerNotifier struct{}

func (w *writerNotifier) Notify(_ context.Context, note alerting.Notification) error {
	_, err := fmt.Fprintln(os.Stdout, alerting.RenderMessage(note))
	return err
}

var (
	_ engine.Resolver   = (*staticResolver)(nil)
	_ alerting.Notifier = (*writerNotifier)(nil)
)
