package source

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"alertwatch/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func syntheticFetch(t *testing.T, req market.Request) market.FetchResult {
	t.Helper()
	s := NewSynthetic(noopLogger())
	res, err := s.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("synthetic fetch: %v", err)
	}
	return res
}

func TestSyntheticDeterministic(t *testing.T) {
	a := NewSynthetic(noopLogger())
	b := NewSynthetic(noopLogger())

	sa, sb := a.Series(), b.Series()
	if len(sa) != 60 || len(sb) != 60 {
		t.Fatalf("series length = %d/%d, want 60", len(sa), len(sb))
	}
	if sa[0] != 150.0 {
		t.Fatalf("series starts at %v, want 150.0", sa[0])
	}
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("series diverges at %d: %v vs %v", i, sa[i], sb[i])
		}
	}
}

func TestSyntheticPrice(t *testing.T) {
	res := syntheticFetch(t, market.Request{Symbol: market.SentinelSymbol, Metric: market.MetricPrice})

	if res.Origin != "synthetic" {
		t.Fatalf("origin = %s", res.Origin)
	}
	value, ok := res.Value(market.FieldValue)
	if !ok || !value.IsPositive() {
		t.Fatalf("value = %s, ok = %v", value, ok)
	}
	if _, ok := res.Value(market.FieldChangePercent); !ok {
		t.Fatal("price result missing changePercent")
	}
}

func TestSyntheticRSIWithinBounds(t *testing.T) {
	res := syntheticFetch(t, market.Request{
		Symbol: market.SentinelSymbol, Metric: market.MetricRSI, Timeframe: "1h",
	})

	rsi, ok := res.Value(market.FieldValue)
	if !ok {
		t.Fatal("RSI result missing value")
	}
	f := rsi.InexactFloat64()
	if f < 0 || f > 100 {
		t.Fatalf("RSI %v out of [0, 100]", f)
	}
}

func TestSyntheticBBandsOrdered(t *testing.T) {
	res := syntheticFetch(t, market.Request{
		Symbol: market.SentinelSymbol, Metric: market.MetricBBands, Timeframe: "1h",
	})

	upper, _ := res.Value(market.FieldUpperBand)
	middle, _ := res.Value(market.FieldMiddleBand)
	lower, _ := res.Value(market.FieldLowerBand)
	if !upper.GreaterThanOrEqual(middle) || !middle.GreaterThanOrEqual(lower) {
		t.Fatalf("bands out of order: %s / %s / %s", upper, middle, lower)
	}
}

func TestSyntheticMACDFields(t *testing.T) {
	res := syntheticFetch(t, market.Request{
		Symbol: market.SentinelSymbol, Metric: market.MetricMACD, Timeframe: "1h",
	})

	macd, okM := res.Value(market.FieldMACD)
	signal, okS := res.Value(market.FieldMACDSignal)
	hist, okH := res.Value(market.FieldMACDHist)
	if !okM || !okS || !okH {
		t.Fatal("MACD result missing fields")
	}
	diff := macd.InexactFloat64() - signal.InexactFloat64() - hist.InexactFloat64()
	if diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("hist %s != macd %s - signal %s", hist, macd, signal)
	}
}

func TestSyntheticParamsRespected(t *testing.T) {
	short := syntheticFetch(t, market.Request{
		Symbol: market.SentinelSymbol, Metric: market.MetricSMA, Timeframe: "1h",
		Params: market.Params{"period": "5"},
	})
	long := syntheticFetch(t, market.Request{
		Symbol: market.SentinelSymbol, Metric: market.MetricSMA, Timeframe: "1h",
		Params: market.Params{"period": "50"},
	})

	a, _ := short.Value(market.FieldValue)
	b, _ := long.Value(market.FieldValue)
	if a.Equal(b) {
		t.Fatal("period parameter ignored")
	}
}

func TestSyntheticSupportsEveryClass(t *testing.T) {
	s := NewSynthetic(noopLogger())
	for _, class := range []market.MetricClass{market.ClassPrice, market.ClassIndicator, market.ClassQuote} {
		if !s.Supports(class) {
			t.Fatalf("synthetic does not support %s", class)
		}
	}
}
