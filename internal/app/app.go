package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"alertwatch/internal/alerting"
	"alertwatch/internal/config"
	"alertwatch/internal/engine"
	"alertwatch/internal/fetch"
	"alertwatch/internal/market"
	"alertwatch/internal/rules"
	"alertwatch/internal/scheduler"
	"alertwatch/internal/source"
	"alertwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newYahoo() *source.Yahoo {
	cfg := a.Config.Sources.Yahoo
	return source.NewYahoo(source.YahooOptions{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		Range:     cfg.Range,
	}, a.Logger)
}

// newFallback assembles the per-class adapter chains behind the shared
// cache. Chain order is priority order.
func (a *App) newFallback() *fetch.Fallback {
	src := a.Config.Sources

	binance := source.NewBinance(source.BinanceOptions{
		BaseURL:   src.Binance.BaseURL,
		Timeout:   src.Binance.RequestTimeout,
		UserAgent: src.Binance.UserAgent,
		Window:    src.Binance.Window,
	}, a.Logger)

	chainlink := source.NewChainlink(source.ChainlinkOptions{
		RPCURL:  src.Chainlink.RPCURL,
		Feeds:   src.Chainlink.Feeds,
		Timeout: src.Chainlink.RequestTimeout,
	}, a.Logger)

	taapi := source.NewTaapi(source.TaapiOptions{
		BaseURL: src.Taapi.BaseURL,
		APIKey:  src.Taapi.APIKey,
		Timeout: src.Taapi.RequestTimeout,
	}, a.Logger)

	yahoo := a.newYahoo()

	tase := source.NewTase(source.TaseOptions{
		BaseURL:   src.Tase.BaseURL,
		Codes:     src.Tase.Codes,
		Timeout:   src.Tase.RequestTimeout,
		UserAgent: src.Tase.UserAgent,
	}, a.Logger)

	chains := fetch.Chains{
		Price:     []source.Adapter{binance, chainlink},
		Indicator: []source.Adapter{taapi},
		Quote:     []source.Adapter{yahoo, tase},
	}

	cache := fetch.NewCache(a.Config.Engine.CacheTTL, a.Logger)
	sentinel := source.NewSynthetic(a.Logger)

	return fetch.NewFallback(chains, sentinel, cache, fetch.Options{
		OverallTimeout: a.Config.Engine.FetchTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	tg := a.Config.Alerting.Telegram
	if !tg.Enabled {
		return nil
	}
	return alerting.NewTelegramNotifier(
		tg.BotToken, tg.ChatID, a.Config.Alerting.Chats,
		tg.APIBase, tg.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildRule converts one declared rule into a submittable AlertRule.
func buildRule(rc config.RuleConfig) (rules.AlertRule, error) {
	threshold, err := rules.ThresholdFromFloat(rc.Threshold)
	if err != nil {
		return rules.AlertRule{}, fmt.Errorf("rule %s/%s: threshold: %w", rc.Owner, rc.Symbol, err)
	}

	rule := rules.AlertRule{
		Owner:      rc.Owner,
		Symbol:     rc.Symbol,
		Metric:     market.Metric(rc.Metric),
		Timeframe:  market.Timeframe(rc.Timeframe),
		Params:     market.Params(rc.Params),
		Field:      rc.Field,
		Comparator: rules.Comparator(rc.Comparator),
		Threshold:  threshold,
	}

	if rc.Baseline != 0 {
		baseline, err := rules.ThresholdFromFloat(rc.Baseline)
		if err != nil {
			return rules.AlertRule{}, fmt.Errorf("rule %s/%s: baseline: %w", rc.Owner, rc.Symbol, err)
		}
		rule.Baseline = baseline
	}

	if rc.Cooldown != "" {
		cooldown, err := rules.ParseCooldown(rc.Cooldown)
		if err != nil {
			return rules.AlertRule{}, fmt.Errorf("rule %s/%s: cooldown: %w", rc.Owner, rc.Symbol, err)
		}
		rule.Cooldown = cooldown
	}

	return rule, nil
}

// Run executes the long-running alert engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	ruleStore := rules.NewStore(a.Logger)
	eng := engine.New(ruleStore, a.newFallback(), a.newNotifier(), engine.Options{
		FetchWorkers:    a.Config.Engine.FetchWorkers,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger).WithScheduler(sched)
	if store != nil {
		eng.WithStorage(store, store)
	}

	for _, rc := range a.Config.Rules {
		rule, buildErr := buildRule(rc)
		if buildErr != nil {
			return buildErr
		}
		id, submitErr := eng.Submit(rule)
		if submitErr != nil {
			return fmt.Errorf("submit rule %s/%s: %w", rc.Owner, rc.Symbol, submitErr)
		}
		a.Logger.Info().
			Str("owner", rule.Owner).
			Str("symbol", rule.Symbol).
			Int64("id", id).
			Msg("declared rule submitted")
	}

	a.Logger.Info().Msg("starting alert engine")
	err = eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert engine stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	Symbol    string
	Metric    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Symbol string
	Range  string
	DryRun bool
}

// ValueOptions configure the on-demand value command.
type ValueOptions struct {
	Symbol    string
	Metric    string
	Timeframe string
	Field     string
	Params    map[string]string
}

// SimulateOptions configure the alert pipeline dry run.
type SimulateOptions struct {
	Owner      string
	Symbol     string
	Metric     string
	Comparator string
	Threshold  float64
	Baseline   float64
	Value      float64
}
