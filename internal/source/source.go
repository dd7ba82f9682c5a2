package source

import (
	"context"
	"time"

	"alertwatch/internal/market"
)

// RetryPolicy bounds in-place retries for one adapter. Only transport
// errors are retried; rate-limit and structural failures fall through
// to the next adapter immediately.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Adapter is the plugin contract for one external data provider.
type Adapter interface {
	Name() string
	Supports(class market.MetricClass) bool
	Retry() RetryPolicy
	Fetch(ctx context.Context, req market.Request) (market.FetchResult, error)
}

func defaultRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond}
}
