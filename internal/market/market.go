package market

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metric identifies what a rule watches.
type Metric string

const (
	MetricPrice  Metric = "PRICE"
	MetricRSI    Metric = "RSI"
	MetricMACD   Metric = "MACD"
	MetricBBands Metric = "BBANDS"
	MetricSMA    Metric = "SMA"
	MetricEMA    Metric = "EMA"
)

// Indicator reports whether the metric requires an indicator-capable source.
func (m Metric) Indicator() bool {
	switch m {
	case MetricRSI, MetricMACD, MetricBBands, MetricSMA, MetricEMA:
		return true
	}
	return false
}

// ParseMetric validates and normalises a metric literal.
func ParseMetric(raw string) (Metric, error) {
	m := Metric(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case MetricPrice, MetricRSI, MetricMACD, MetricBBands, MetricSMA, MetricEMA:
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", raw)
}

// MetricClass partitions requests by the kind of source able to serve them.
type MetricClass string

const (
	// ClassPrice is a simple crypto pair price.
	ClassPrice MetricClass = "price"
	// ClassIndicator is a computed technical indicator.
	ClassIndicator MetricClass = "indicator"
	// ClassQuote is an equity quote (bare ticker).
	ClassQuote MetricClass = "quote"
)

// Timeframe is a candle interval accepted by indicator sources.
type Timeframe string

// Timeframes is the closed set of supported intervals, shortest first.
var Timeframes = []Timeframe{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "12h", "1d", "7d"}

// ParseTimeframe validates a timeframe literal against the closed set.
func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Timeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe %q", raw)
}

// Params carries indicator-specific tuning values, e.g. period or stddev.
// An empty map means provider defaults.
type Params map[string]string

// Well-known value fields of a FetchResult.
const (
	FieldValue         = "value"
	FieldChangePercent = "changePercent"
	FieldMACD          = "valueMACD"
	FieldMACDSignal    = "valueMACDSignal"
	FieldMACDHist      = "valueMACDHist"
	FieldUpperBand     = "valueUpperBand"
	FieldMiddleBand    = "valueMiddleBand"
	FieldLowerBand     = "valueLowerBand"
)

// SentinelSymbol always resolves through the deterministic synthetic
// source, bypassing every network adapter.
const SentinelSymbol = "TEST"

var (
	cryptoPairPattern = regexp.MustCompile(`^[A-Z0-9]+/[A-Z0-9]+$`)
	tickerPattern     = regexp.MustCompile(`^[A-Z0-9]+(\.[A-Z]+)?$`)
)

// NormalizeSymbol upper-cases and validates a pair or ticker. Crypto
// pairs must match BASE/QUOTE; equities are bare tickers with an
// optional exchange suffix such as PHOE.TA.
func NormalizeSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", fmt.Errorf("symbol is empty")
	}
	if strings.Contains(sym, "/") {
		if !cryptoPairPattern.MatchString(sym) {
			return "", fmt.Errorf("symbol %q does not match BASE/QUOTE", raw)
		}
		return sym, nil
	}
	if len(sym) > 12 || !tickerPattern.MatchString(sym) {
		return "", fmt.Errorf("invalid ticker %q", raw)
	}
	return sym, nil
}

// IsCryptoPair reports whether a normalised symbol is a BASE/QUOTE pair.
func IsCryptoPair(symbol string) bool {
	return cryptoPairPattern.MatchString(symbol)
}

// Request describes one (symbol, metric, timeframe, params) tuple to resolve.
type Request struct {
	Symbol    string
	Metric    Metric
	Timeframe Timeframe
	Params    Params
}

// Class derives the metric class from the metric and symbol shape.
func (r Request) Class() MetricClass {
	if r.Metric.Indicator() {
		return ClassIndicator
	}
	if IsCryptoPair(r.Symbol) {
		return ClassPrice
	}
	return ClassQuote
}

// Key returns a stable cache key for the request. Params are sorted so
// equivalent requests collapse onto one fetch.
func (r Request) Key() string {
	var b strings.Builder
	b.WriteString(r.Symbol)
	b.WriteByte('|')
	b.WriteString(string(r.Metric))
	b.WriteByte('|')
	b.WriteString(string(r.Timeframe))
	if len(r.Params) > 0 {
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(r.Params[k])
		}
	}
	return b.String()
}

// FetchResult is the ephemeral outcome of resolving one request.
type FetchResult struct {
	Request   Request
	Origin    string
	Values    map[string]decimal.Decimal
	FetchedAt time.Time
}

// Value returns a named field of the result.
func (r FetchResult) Value(field string) (decimal.Decimal, bool) {
	v, ok := r.Values[field]
	return v, ok
}
