package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

// TaapiOptions parameterise the taapi.io indicator adapter.
type TaapiOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Taapi computes technical indicators server-side via taapi.io. It is
// the only network source advertising the indicator class.
type Taapi struct {
	opts    TaapiOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTaapi constructs the indicator adapter. Without an API key it is
// still constructed but every fetch reports not-found, so indicator
// rules surface a clear diagnostic instead of a transport error.
func NewTaapi(opts TaapiOptions, logger zerolog.Logger) *Taapi {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.taapi.io"
	}

	return &Taapi{
		opts:    opts,
		logger:  logger.With().Str("component", "taapi_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (t *Taapi) Name() string { return "taapi" }

func (t *Taapi) Supports(class market.MetricClass) bool {
	return class == market.ClassIndicator
}

func (t *Taapi) Retry() RetryPolicy {
	// taapi free tier is aggressively rate-limited; back off harder.
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second}
}

// Fetch calls the indicator endpoint named after the metric, passing
// rule params straight through as query values.
func (t *Taapi) Fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	if t.opts.APIKey == "" {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindNotFound,
			errors.New("taapi api key not configured"))
	}

	query := url.Values{}
	query.Set("secret", t.opts.APIKey)
	query.Set("exchange", "binance")
	query.Set("symbol", req.Symbol)
	query.Set("interval", string(req.Timeframe))
	for k, v := range req.Params {
		query.Set(k, v)
	}

	endpoint := fmt.Sprintf("%s/%s?%s", t.baseURL, strings.ToLower(string(req.Metric)), query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindRateLimited,
			errors.New("status 429"))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindNotFound,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	case resp.StatusCode != http.StatusOK:
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(payload, &raw); err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindBadPayload, err)
	}
	if len(raw) == 0 {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindBadPayload,
			errors.New("indicator response empty"))
	}

	values := make(map[string]decimal.Decimal, len(raw))
	for field, num := range raw {
		v, err := decimal.NewFromString(num.String())
		if err != nil {
			return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindBadPayload,
				fmt.Errorf("parse %s: %w", field, err))
		}
		values[field] = v
	}

	return market.FetchResult{
		Request:   req,
		Origin:    t.Name(),
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ Adapter = (*Taapi)(nil)
