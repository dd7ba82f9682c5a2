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

const yahooChartPath = "/v8/finance/chart"

// YahooOptions parameterise the Yahoo Finance chart adapter.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Range     string
}

// Yahoo is the primary equity quote source, built on the public chart
// endpoint. The same endpoint serves both the current quote and the
// daily close series used by backfill and export.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// SeriesPoint is one daily close observation.
type SeriesPoint struct {
	At    time.Time
	Close decimal.Decimal
}

// NewYahoo constructs the Yahoo adapter.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if opts.Range == "" {
		opts.Range = "5d"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) Supports(class market.MetricClass) bool {
	return class == market.ClassQuote
}

func (y *Yahoo) Retry() RetryPolicy { return defaultRetry() }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch resolves the latest quote plus the prior-close day change.
func (y *Yahoo) Fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	chart, err := y.chart(ctx, req.Symbol, y.opts.Range)
	if err != nil {
		return market.FetchResult{}, err
	}

	result := chart.Chart.Result[0]

	value := decimal.NewFromFloat(result.Meta.RegularMarketPrice)
	if value.IsZero() {
		// Fall back to the last non-nil close in the series.
		for _, q := range result.Indicators.Quote {
			for i := len(q.Close) - 1; i >= 0; i-- {
				if q.Close[i] != nil {
					value = decimal.NewFromFloat(*q.Close[i])
					break
				}
			}
		}
	}
	if value.IsZero() {
		return market.FetchResult{}, market.NewFetchError(y.Name(), market.KindBadPayload,
			errors.New("chart response carries no price"))
	}

	values := map[string]decimal.Decimal{market.FieldValue: value}
	if prev := result.Meta.ChartPreviousClose; prev > 0 {
		prevClose := decimal.NewFromFloat(prev)
		change := value.Sub(prevClose).Div(prevClose).Mul(decimal.NewFromInt(100))
		values[market.FieldChangePercent] = change
	}

	return market.FetchResult{
		Request:   req,
		Origin:    y.Name(),
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Series returns the daily close history for a ticker over the given
// range literal (e.g. "1mo", "6mo"). Used by backfill and export.
func (y *Yahoo) Series(ctx context.Context, symbol, rng string) ([]SeriesPoint, error) {
	if rng == "" {
		rng = "1mo"
	}
	chart, err := y.chart(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, market.NewFetchError(y.Name(), market.KindBadPayload,
			errors.New("chart response carries no quote series"))
	}

	closes := result.Indicators.Quote[0].Close
	points := make([]SeriesPoint, 0, len(closes))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, SeriesPoint{
			At:    time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}
	return points, nil
}

func (y *Yahoo) chart(ctx context.Context, symbol, rng string) (*yahooChart, error) {
	endpoint := fmt.Sprintf("%s%s/%s?range=%s&interval=1d", y.baseURL, yahooChartPath, symbol, rng)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, market.NewFetchError(y.Name(), market.KindTransport, err)
	}
	ua := strings.TrimSpace(y.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; alertwatch/1.0)"
	}
	httpReq.Header.Set("User-Agent", ua)

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return nil, market.NewFetchError(y.Name(), market.KindTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, market.NewFetchError(y.Name(), market.KindTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, market.NewFetchError(y.Name(), market.KindRateLimited, errors.New("status 429"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, market.NewFetchError(y.Name(), market.KindNotFound,
			fmt.Errorf("unknown symbol %s", symbol))
	case resp.StatusCode != http.StatusOK:
		return nil, market.NewFetchError(y.Name(), market.KindTransport,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var chart yahooChart
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, market.NewFetchError(y.Name(), market.KindBadPayload, err)
	}
	if chart.Chart.Error != nil {
		return nil, market.NewFetchError(y.Name(), market.KindNotFound,
			fmt.Errorf("%s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 {
		return nil, market.NewFetchError(y.Name(), market.KindBadPayload,
			errors.New("chart response carries no result"))
	}
	return &chart, nil
}

var _ Adapter = (*Yahoo)(nil)
