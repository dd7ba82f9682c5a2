package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"alertwatch/internal/market"
	"alertwatch/internal/source"
)

// Chains declares the adapter priority order per metric class.
type Chains struct {
	Price     []source.Adapter
	Indicator []source.Adapter
	Quote     []source.Adapter
}

// Options tune the fallback fetcher.
type Options struct {
	// OverallTimeout bounds one Resolve end to end, across all adapters
	// and retries, so one slow request cannot stall the next tick.
	OverallTimeout time.Duration
}

// Fallback resolves data requests by trying adapters in priority order
// with per-adapter bounded retry, consulting the shared cache first.
// The sentinel symbol short-circuits to the synthetic source.
type Fallback struct {
	chains   Chains
	sentinel source.Adapter
	cache    *Cache
	opts     Options
	logger   zerolog.Logger
}

// NewFallback wires the adapter chains, sentinel source, and cache.
func NewFallback(chains Chains, sentinel source.Adapter, cache *Cache, opts Options, logger zerolog.Logger) *Fallback {
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = 45 * time.Second
	}
	return &Fallback{
		chains:   chains,
		sentinel: sentinel,
		cache:    cache,
		opts:     opts,
		logger:   logger.With().Str("component", "fallback_fetcher").Logger(),
	}
}

// Resolve returns a single successful value for the request or a
// terminal DataUnavailableError carrying the per-adapter failure trail.
func (f *Fallback) Resolve(ctx context.Context, req market.Request) (market.FetchResult, error) {
	return f.cache.GetOrFetch(req.Key(), func() (market.FetchResult, error) {
		return f.fetch(ctx, req)
	})
}

func (f *Fallback) fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.OverallTimeout)
	defer cancel()

	if req.Symbol == market.SentinelSymbol && f.sentinel != nil {
		return f.sentinel.Fetch(ctx, req)
	}

	class := req.Class()
	var trail []string
	for _, adapter := range f.chain(class) {
		if !adapter.Supports(class) {
			continue
		}

		res, err := f.attempt(ctx, adapter, req)
		if err == nil {
			f.logger.Debug().
				Str("key", req.Key()).
				Str("origin", adapter.Name()).
				Msg("request resolved")
			return res, nil
		}

		trail = append(trail, fmt.Sprintf("%s: %s: %v",
			adapter.Name(), market.FailureKindOf(err), unwrapFetchErr(err)))

		if ctx.Err() != nil {
			break
		}
	}

	due := &market.DataUnavailableError{Request: req, Trail: trail}
	f.logger.Warn().Str("key", req.Key()).Strs("trail", trail).Msg("all sources exhausted")
	return market.FetchResult{}, due
}

// attempt runs one adapter with its retry policy: transport errors are
// retried in place with exponential backoff; rate-limit and structural
// failures abort immediately so the chain can fall through.
func (f *Fallback) attempt(ctx context.Context, adapter source.Adapter, req market.Request) (market.FetchResult, error) {
	policy := adapter.Retry()
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	strategy := backoff.WithContext(
		backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)

	var res market.FetchResult
	operation := func() error {
		var err error
		res, err = adapter.Fetch(ctx, req)
		if err == nil {
			return nil
		}
		if market.FailureKindOf(err) != market.KindTransport {
			return backoff.Permanent(err)
		}
		f.logger.Debug().
			Str("adapter", adapter.Name()).
			Str("key", req.Key()).
			Err(err).
			Msg("transport failure, retrying")
		return err
	}

	if err := backoff.Retry(operation, strategy); err != nil {
		return market.FetchResult{}, err
	}
	return res, nil
}

func (f *Fallback) chain(class market.MetricClass) []source.Adapter {
	switch class {
	case market.ClassPrice:
		return f.chains.Price
	case market.ClassIndicator:
		return f.chains.Indicator
	case market.ClassQuote:
		return f.chains.Quote
	}
	return nil
}

func unwrapFetchErr(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
