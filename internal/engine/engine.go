package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"alertwatch/internal/alerting"
	"alertwatch/internal/market"
	"alertwatch/internal/rules"
	"alertwatch/internal/scheduler"
	"alertwatch/internal/storage"
)

// Resolver produces one market value per request, or a terminal error.
type Resolver interface {
	Resolve(ctx context.Context, req market.Request) (market.FetchResult, error)
}

// Options tune the evaluation engine.
type Options struct {
	// FetchWorkers bounds the number of concurrent source requests per tick.
	FetchWorkers int
	// AdvisoryLockKey guards ticks across replicas when storage is
	// configured. Zero disables the lock.
	AdvisoryLockKey int64
	// Clock overrides the tick timestamp source, for tests.
	Clock func() time.Time
}

// Engine drives the evaluation loop: snapshot rules, resolve each
// distinct request once, evaluate predicates, gate on cooldown, and
// dispatch notifications. Persistence and delivery are both best
// effort; a failing tick never stops the cadence.
type Engine struct {
	store        *rules.Store
	resolver     Resolver
	notifier     alerting.Notifier
	scheduler    *scheduler.Scheduler
	observations storage.ObservationStore
	alerts       storage.AlertStore
	locker       storage.AdvisoryLocker
	opts         Options
	logger       zerolog.Logger
}

// New constructs the engine around a rule store and resolver.
func New(store *rules.Store, resolver Resolver, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Engine {
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 4
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// WithScheduler attaches the tick cadence used by Run.
func (e *Engine) WithScheduler(sched *scheduler.Scheduler) *Engine {
	e.scheduler = sched
	return e
}

// WithStorage attaches optional persistence for observations and fired
// alerts. A store implementing AdvisoryLocker also guards ticks.
func (e *Engine) WithStorage(obs storage.ObservationStore, alerts storage.AlertStore) *Engine {
	e.observations = obs
	e.alerts = alerts
	if l, ok := obs.(storage.AdvisoryLocker); ok {
		e.locker = l
	}
	return e
}

// Submit normalises and registers a rule, returning its assigned id.
func (e *Engine) Submit(rule rules.AlertRule) (int64, error) {
	sym, err := market.NormalizeSymbol(rule.Symbol)
	if err != nil {
		return 0, err
	}
	rule.Symbol = sym
	return e.store.Submit(rule)
}

// Cancel removes a rule by id.
func (e *Engine) Cancel(owner, symbol string, id int64) error {
	sym, err := market.NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	return e.store.Cancel(owner, sym, id)
}

// List returns the owner's rules, optionally filtered by symbol.
func (e *Engine) List(owner, symbol string) ([]rules.AlertRule, error) {
	if symbol == "" {
		return e.store.List(owner, ""), nil
	}
	sym, err := market.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return e.store.List(owner, sym), nil
}

// CurrentValue resolves one request on demand, outside the tick loop.
func (e *Engine) CurrentValue(ctx context.Context, req market.Request) (market.FetchResult, error) {
	sym, err := market.NormalizeSymbol(req.Symbol)
	if err != nil {
		return market.FetchResult{}, err
	}
	req.Symbol = sym
	return e.resolver.Resolve(ctx, req)
}

// Run begins the periodic evaluation loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return e.scheduler.Run(ctx, e.ProcessTick)
}

// ProcessTick evaluates every active rule once, guarded by the advisory
// lock when one is configured.
func (e *Engine) ProcessTick(ctx context.Context, now time.Time) error {
	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		e.logger.Debug().Time("tick", now).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return e.Tick(ctx, now)
}

// Tick runs one evaluation pass at the given instant.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	snapshot := e.store.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	requests := make(map[string]market.Request)
	for _, rule := range snapshot {
		req := rule.FetchRequest()
		requests[req.Key()] = req
	}

	results, failures := e.resolveAll(ctx, requests)

	fired := 0
	for _, rule := range snapshot {
		key := rule.FetchRequest().Key()
		res, ok := results[key]
		if !ok {
			e.logger.Warn().
				Str("owner", rule.Owner).
				Str("symbol", rule.Symbol).
				Int64("id", rule.ID).
				Err(failures[key]).
				Msg("rule skipped, data unavailable")
			continue
		}

		holds, observed, evalErr := evaluate(rule, res)
		if evalErr != nil {
			e.logger.Error().
				Str("owner", rule.Owner).
				Str("symbol", rule.Symbol).
				Int64("id", rule.ID).
				Err(evalErr).
				Msg("rule evaluation failed")
			continue
		}
		if !holds || !eligible(rule, now) {
			continue
		}

		e.fire(ctx, rule, res, observed, now)
		fired++
	}

	e.logger.Info().
		Time("tick", now).
		Int("rules", len(snapshot)).
		Int("requests", len(requests)).
		Int("fired", fired).
		Msg("tick complete")
	return ctx.Err()
}

// resolveAll fetches every distinct request with bounded concurrency.
// Failures are collected, never propagated; one dead symbol must not
// sink the rest of the tick.
func (e *Engine) resolveAll(ctx context.Context, requests map[string]market.Request) (map[string]market.FetchResult, map[string]error) {
	var mu sync.Mutex
	results := make(map[string]market.FetchResult, len(requests))
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchWorkers)
	for key, req := range requests {
		key, req := key, req
		g.Go(func() error {
			res, err := e.resolver.Resolve(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[key] = err
				return nil
			}
			results[key] = res
			return nil
		})
	}
	_ = g.Wait()

	for key, res := range results {
		e.persistObservation(ctx, res, key)
	}
	return results, failures
}

// fire marks the rule fired, dispatches the notification, and records
// the audit row. Delivery failure does not undo the fire decision.
func (e *Engine) fire(ctx context.Context, rule rules.AlertRule, res market.FetchResult, observed decimal.Decimal, now time.Time) {
	retire := rule.Cooldown <= 0
	e.store.MarkFired(rule.Owner, rule.Symbol, rule.ID, now, retire)

	if e.alerts != nil {
		record := storage.AlertRecord{
			Owner:      rule.Owner,
			RuleID:     rule.ID,
			Symbol:     rule.Symbol,
			Metric:     string(rule.Metric),
			Comparator: string(rule.Comparator),
			Threshold:  rule.Threshold,
			Observed:   observed,
			FiredAt:    now,
		}
		if _, err := e.alerts.InsertAlert(ctx, record); err != nil {
			e.logger.Error().Err(err).Int64("id", rule.ID).Msg("failed to persist alert record")
		}
	}

	if e.notifier == nil {
		return
	}
	note := alerting.Notification{
		Owner:      rule.Owner,
		RuleID:     rule.ID,
		Symbol:     rule.Symbol,
		Metric:     rule.Metric,
		Timeframe:  rule.Timeframe,
		Field:      rule.Field,
		Comparator: rule.Comparator,
		Threshold:  rule.Threshold,
		Baseline:   rule.Baseline,
		Observed:   observed,
		Origin:     res.Origin,
		FiredAt:    now,
	}
	if err := e.notifier.Notify(ctx, note); err != nil {
		e.logger.Error().
			Err(err).
			Str("owner", rule.Owner).
			Int64("id", rule.ID).
			Msg("failed to dispatch alert")
	}
}

func (e *Engine) persistObservation(ctx context.Context, res market.FetchResult, key string) {
	if e.observations == nil {
		return
	}
	values, err := json.Marshal(res.Values)
	if err != nil {
		e.logger.Error().Err(err).Str("key", key).Msg("failed to encode observation")
		return
	}
	obs := storage.Observation{
		Symbol:     res.Request.Symbol,
		Metric:     string(res.Request.Metric),
		Timeframe:  string(res.Request.Timeframe),
		Origin:     res.Origin,
		Values:     values,
		ObservedAt: res.FetchedAt,
	}
	if err := e.observations.UpsertObservation(ctx, obs); err != nil {
		e.logger.Error().Err(err).Str("key", key).Msg("failed to persist observation")
	}
}

func (e *Engine) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.AdvisoryLockKey == 0 || e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
