package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
	"alertwatch/internal/rules"
)

func resultWith(values map[string]float64) market.FetchResult {
	converted := make(map[string]decimal.Decimal, len(values))
	for k, v := range values {
		converted[k] = decimal.NewFromFloat(v)
	}
	return market.FetchResult{Origin: "test", Values: converted, FetchedAt: time.Now().UTC()}
}

func TestEvaluateAbove(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "BTC/USDT",
		Metric:     market.MetricPrice,
		Comparator: rules.Above,
		Threshold:  decimal.NewFromInt(50000),
	}

	holds, observed, err := evaluate(rule, resultWith(map[string]float64{"value": 49000}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if holds {
		t.Fatal("49000 should not satisfy ABOVE 50000")
	}
	if !observed.Equal(decimal.NewFromInt(49000)) {
		t.Fatalf("observed = %s", observed)
	}

	holds, _, err = evaluate(rule, resultWith(map[string]float64{"value": 50500}))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !holds {
		t.Fatal("50500 should satisfy ABOVE 50000")
	}

	// Equality does not fire a strict comparator.
	holds, _, _ = evaluate(rule, resultWith(map[string]float64{"value": 50000}))
	if holds {
		t.Fatal("50000 should not satisfy ABOVE 50000")
	}
}

func TestEvaluateBelowIndicatorField(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "ETH/USDT",
		Metric:     market.MetricRSI,
		Timeframe:  "1h",
		Comparator: rules.Below,
		Threshold:  decimal.NewFromInt(30),
	}

	holds, _, err := evaluate(rule, resultWith(map[string]float64{"value": 28.4}))
	if err != nil || !holds {
		t.Fatalf("RSI 28.4 should satisfy BELOW 30 (err %v)", err)
	}

	holds, _, err = evaluate(rule, resultWith(map[string]float64{"value": 31.0}))
	if err != nil || holds {
		t.Fatalf("RSI 31.0 should not satisfy BELOW 30 (err %v)", err)
	}
}

func TestEvaluateNamedField(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "BTC/USDT",
		Metric:     market.MetricBBands,
		Timeframe:  "1h",
		Field:      market.FieldUpperBand,
		Comparator: rules.Above,
		Threshold:  decimal.NewFromInt(52000),
	}

	res := resultWith(map[string]float64{
		market.FieldUpperBand:  52500,
		market.FieldMiddleBand: 50000,
		market.FieldLowerBand:  47500,
	})
	holds, observed, err := evaluate(rule, res)
	if err != nil || !holds {
		t.Fatalf("upper band 52500 should satisfy ABOVE 52000 (err %v)", err)
	}
	if !observed.Equal(decimal.NewFromInt(52500)) {
		t.Fatalf("observed = %s, want the named field", observed)
	}
}

func TestEvaluateMissingField(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "BTC/USDT",
		Metric:     market.MetricMACD,
		Timeframe:  "1h",
		Field:      market.FieldMACDHist,
		Comparator: rules.Above,
		Threshold:  decimal.Zero,
	}

	if _, _, err := evaluate(rule, resultWith(map[string]float64{"value": 1})); err == nil {
		t.Fatal("missing field should error")
	}
}

func TestEvaluatePctChange(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "BTC/USDT",
		Metric:     market.MetricPrice,
		Comparator: rules.PctChange,
		Threshold:  decimal.NewFromInt(5),
		Baseline:   decimal.NewFromInt(48000),
	}

	// +5.21% from baseline, beyond the 5% threshold.
	holds, _, err := evaluate(rule, resultWith(map[string]float64{"value": 50500}))
	if err != nil || !holds {
		t.Fatalf("50500 vs baseline 48000 should fire at 5%% (err %v)", err)
	}

	// -6.25% also fires: the threshold bounds magnitude in both directions.
	holds, _, err = evaluate(rule, resultWith(map[string]float64{"value": 45000}))
	if err != nil || !holds {
		t.Fatalf("drop beyond threshold should fire (err %v)", err)
	}

	holds, _, err = evaluate(rule, resultWith(map[string]float64{"value": 48500}))
	if err != nil || holds {
		t.Fatalf("+1.04%% should not fire at 5%% (err %v)", err)
	}
}

func TestEvaluateChange24h(t *testing.T) {
	rule := rules.AlertRule{
		Symbol:     "BTC/USDT",
		Metric:     market.MetricPrice,
		Comparator: rules.Change24h,
		Threshold:  decimal.NewFromInt(3),
	}

	holds, observed, err := evaluate(rule, resultWith(map[string]float64{
		"value":         50000,
		"changePercent": -4.2,
	}))
	if err != nil || !holds {
		t.Fatalf("-4.2%% 24h change should fire at 3%% (err %v)", err)
	}
	if !observed.Equal(decimal.NewFromFloat(-4.2)) {
		t.Fatalf("observed = %s, want the change percent", observed)
	}

	if _, _, err := evaluate(rule, resultWith(map[string]float64{"value": 50000})); err == nil {
		t.Fatal("missing changePercent should error")
	}
}

func TestEligible(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	cases := []struct {
		name string
		rule rules.AlertRule
		want bool
	}{
		{"never fired", rules.AlertRule{}, true},
		{"never fired with cooldown", rules.AlertRule{Cooldown: time.Hour}, true},
		{"one-shot already fired", rules.AlertRule{LastFiredAt: past(time.Minute)}, false},
		{"cooldown still running", rules.AlertRule{Cooldown: time.Hour, LastFiredAt: past(10 * time.Minute)}, false},
		{"cooldown elapsed", rules.AlertRule{Cooldown: time.Hour, LastFiredAt: past(61 * time.Minute)}, true},
		{"cooldown boundary", rules.AlertRule{Cooldown: time.Hour, LastFiredAt: past(time.Hour)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eligible(tc.rule, now); got != tc.want {
				t.Fatalf("eligible = %v, want %v", got, tc.want)
			}
		})
	}
}
