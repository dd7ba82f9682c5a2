package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

const binanceTickerPath = "/api/v3/ticker"

// BinanceOptions parameterise the Binance ticker adapter.
type BinanceOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Window    string
}

// Binance is the primary crypto pair price source. One ticker call
// yields both the last price and the rolling-window change percent.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs the Binance adapter.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if opts.Window == "" {
		opts.Window = "1d"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Supports(class market.MetricClass) bool {
	return class == market.ClassPrice
}

func (b *Binance) Retry() RetryPolicy { return defaultRetry() }

type binanceTicker struct {
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// Fetch retrieves the rolling ticker for a BASE/QUOTE pair.
func (b *Binance) Fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	pair := strings.ReplaceAll(req.Symbol, "/", "")
	endpoint := fmt.Sprintf("%s%s?symbol=%s&windowSize=%s", b.baseURL, binanceTickerPath, pair, b.opts.Window)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindTransport, err)
	}
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		// Binance answers 429 on rate limiting and 418 on IP bans.
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindRateLimited,
			fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindNotFound,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	case resp.StatusCode != http.StatusOK:
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindTransport,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var ticker binanceTicker
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindBadPayload, err)
	}
	if ticker.LastPrice == "" {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindBadPayload,
			errors.New("ticker response missing lastPrice"))
	}

	last, err := decimal.NewFromString(ticker.LastPrice)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(b.Name(), market.KindBadPayload,
			fmt.Errorf("parse lastPrice: %w", err))
	}

	values := map[string]decimal.Decimal{market.FieldValue: last}
	if ticker.PriceChangePercent != "" {
		if chg, err := decimal.NewFromString(ticker.PriceChangePercent); err == nil {
			values[market.FieldChangePercent] = chg
		}
	}

	return market.FetchResult{
		Request:   req,
		Origin:    b.Name(),
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ Adapter = (*Binance)(nil)
