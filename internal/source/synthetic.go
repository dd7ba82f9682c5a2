package source

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

const (
	syntheticSeed    = 42
	syntheticBase    = 150.0
	syntheticPeriods = 60
)

// Synthetic generates a deterministic price series for the sentinel
// symbol: a fixed-seed random walk from a fixed starting price over a
// fixed number of periods. It never touches the network and never
// fails, so the rest of the pipeline can be validated independently of
// external availability.
type Synthetic struct {
	logger zerolog.Logger
	series []float64
}

// NewSynthetic builds the sentinel source. The series is generated once;
// the same seed always yields the same walk.
func NewSynthetic(logger zerolog.Logger) *Synthetic {
	rng := rand.New(rand.NewSource(syntheticSeed))
	series := make([]float64, syntheticPeriods)
	series[0] = syntheticBase
	for i := 1; i < syntheticPeriods; i++ {
		ret := rng.NormFloat64()*0.02 + 0.001
		series[i] = series[i-1] * (1 + ret)
	}
	return &Synthetic{
		logger: logger.With().Str("component", "synthetic_source").Logger(),
		series: series,
	}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Supports(market.MetricClass) bool { return true }

func (s *Synthetic) Retry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Fetch resolves any metric against the synthetic series.
func (s *Synthetic) Fetch(_ context.Context, req market.Request) (market.FetchResult, error) {
	values, err := s.compute(req)
	if err != nil {
		return market.FetchResult{}, market.NewFetchError(s.Name(), market.KindBadPayload, err)
	}
	return market.FetchResult{
		Request:   req,
		Origin:    s.Name(),
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Series exposes the generated walk for chart rendering.
func (s *Synthetic) Series() []float64 {
	out := make([]float64, len(s.series))
	copy(out, s.series)
	return out
}

func (s *Synthetic) compute(req market.Request) (map[string]decimal.Decimal, error) {
	last := s.series[len(s.series)-1]
	prev := s.series[len(s.series)-2]

	switch req.Metric {
	case market.MetricPrice:
		change := (last - prev) / prev * 100
		return map[string]decimal.Decimal{
			market.FieldValue:         decimal.NewFromFloat(last),
			market.FieldChangePercent: decimal.NewFromFloat(change),
		}, nil

	case market.MetricRSI:
		v, ok := rsiLast(s.series, paramInt(req.Params, "period", 14))
		if !ok {
			return nil, errors.New("series shorter than RSI period")
		}
		return map[string]decimal.Decimal{market.FieldValue: decimal.NewFromFloat(v)}, nil

	case market.MetricSMA:
		v, ok := smaLast(s.series, paramInt(req.Params, "period", 50))
		if !ok {
			return nil, errors.New("series shorter than SMA period")
		}
		return map[string]decimal.Decimal{market.FieldValue: decimal.NewFromFloat(v)}, nil

	case market.MetricEMA:
		v, ok := emaLast(s.series, paramInt(req.Params, "period", 50))
		if !ok {
			return nil, errors.New("series shorter than EMA period")
		}
		return map[string]decimal.Decimal{market.FieldValue: decimal.NewFromFloat(v)}, nil

	case market.MetricMACD:
		macd, signal, hist, ok := macdLast(s.series,
			paramInt(req.Params, "optInFastPeriod", 12),
			paramInt(req.Params, "optInSlowPeriod", 26),
			paramInt(req.Params, "optInSignalPeriod", 9))
		if !ok {
			return nil, errors.New("series too short for MACD")
		}
		return map[string]decimal.Decimal{
			market.FieldMACD:       decimal.NewFromFloat(macd),
			market.FieldMACDSignal: decimal.NewFromFloat(signal),
			market.FieldMACDHist:   decimal.NewFromFloat(hist),
		}, nil

	case market.MetricBBands:
		upper, middle, lower, ok := bbandsLast(s.series,
			paramInt(req.Params, "period", 20),
			paramFloat(req.Params, "stddev", 2))
		if !ok {
			return nil, errors.New("series too short for BBANDS")
		}
		return map[string]decimal.Decimal{
			market.FieldUpperBand:  decimal.NewFromFloat(upper),
			market.FieldMiddleBand: decimal.NewFromFloat(middle),
			market.FieldLowerBand:  decimal.NewFromFloat(lower),
		}, nil
	}

	return nil, errors.New("unsupported metric " + string(req.Metric))
}

func paramInt(params market.Params, key string, def int) int {
	if raw, ok := params[key]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func paramFloat(params market.Params, key string, def float64) float64 {
	if raw, ok := params[key]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return def
}

var _ Adapter = (*Synthetic)(nil)
