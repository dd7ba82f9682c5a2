package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

var (
	taseLastPricePattern = regexp.MustCompile(`"LastPrice":\s*"?([\d,\.]+)"?`)
	taseOpenPattern      = regexp.MustCompile(`"OpeningPrice":\s*"?([\d,\.]+)"?`)
)

// TaseOptions parameterise the TASE page-scrape fallback.
type TaseOptions struct {
	BaseURL   string
	Codes     map[string]string // ticker -> TASE security code
	Timeout   time.Duration
	UserAgent string
}

// Tase scrapes the Tel Aviv exchange security page as a fallback quote
// source for configured .TA tickers when Yahoo is unavailable.
type Tase struct {
	opts    TaseOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTase constructs the scrape adapter.
func NewTase(opts TaseOptions, logger zerolog.Logger) *Tase {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.tase.co.il"
	}

	return &Tase{
		opts:    opts,
		logger:  logger.With().Str("component", "tase_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (t *Tase) Name() string { return "tase" }

func (t *Tase) Supports(class market.MetricClass) bool {
	return class == market.ClassQuote
}

func (t *Tase) Retry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialInterval: time.Second}
}

// Fetch scrapes last and opening prices for a configured ticker.
func (t *Tase) Fetch(ctx context.Context, req market.Request) (market.FetchResult, error) {
	code, ok := t.opts.Codes[req.Symbol]
	if !ok {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindNotFound,
			fmt.Errorf("no security code configured for %s", req.Symbol))
	}

	endpoint := fmt.Sprintf("%s/en/market_data/security/%s/major_data", t.baseURL, code)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}
	ua := strings.TrimSpace(t.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	httpReq.Header.Set("User-Agent", ua)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindRateLimited,
			errors.New("status 429"))
	}
	if resp.StatusCode != http.StatusOK {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindTransport, err)
	}

	last, ok := extractTasePrice(taseLastPricePattern, body)
	if !ok {
		return market.FetchResult{}, market.NewFetchError(t.Name(), market.KindBadPayload,
			errors.New("page carries no LastPrice"))
	}

	values := map[string]decimal.Decimal{market.FieldValue: last}
	if opening, ok := extractTasePrice(taseOpenPattern, body); ok && opening.IsPositive() {
		change := last.Sub(opening).Div(opening).Mul(decimal.NewFromInt(100))
		values[market.FieldChangePercent] = change
	}

	return market.FetchResult{
		Request:   req,
		Origin:    t.Name(),
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func extractTasePrice(pattern *regexp.Regexp, body []byte) (decimal.Decimal, bool) {
	m := pattern.FindSubmatch(body)
	if m == nil {
		return decimal.Decimal{}, false
	}
	raw := strings.ReplaceAll(string(m[1]), ",", "")
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

var _ Adapter = (*Tase)(nil)
