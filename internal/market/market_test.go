package market

import (
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"btc/usdt", "BTC/USDT"},
		{" eth/usdt ", "ETH/USDT"},
		{"aapl", "AAPL"},
		{"phoe.ta", "PHOE.TA"},
		{"TEST", "TEST"},
	}
	for _, tc := range cases {
		got, err := NormalizeSymbol(tc.in)
		if err != nil {
			t.Fatalf("NormalizeSymbol(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "BTC//USDT", "/USDT", "BTC/", "A B", "WAYTOOLONGTICKER"} {
		if _, err := NormalizeSymbol(bad); err == nil {
			t.Fatalf("NormalizeSymbol(%q) should fail", bad)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	for _, tf := range Timeframes {
		got, err := ParseTimeframe(string(tf))
		if err != nil || got != tf {
			t.Fatalf("ParseTimeframe(%q) = %q, %v", tf, got, err)
		}
	}
	if got, err := ParseTimeframe("1H"); err != nil || got != "1h" {
		t.Fatalf("ParseTimeframe should lower-case, got %q, %v", got, err)
	}
	for _, bad := range []string{"", "3h", "1w", "90s"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Fatalf("ParseTimeframe(%q) should fail", bad)
		}
	}
}

func TestRequestClass(t *testing.T) {
	cases := []struct {
		req  Request
		want MetricClass
	}{
		{Request{Symbol: "BTC/USDT", Metric: MetricPrice}, ClassPrice},
		{Request{Symbol: "BTC/USDT", Metric: MetricRSI, Timeframe: "1h"}, ClassIndicator},
		{Request{Symbol: "AAPL", Metric: MetricPrice}, ClassQuote},
		{Request{Symbol: "PHOE.TA", Metric: MetricPrice}, ClassQuote},
		{Request{Symbol: "AAPL", Metric: MetricEMA, Timeframe: "1d"}, ClassIndicator},
	}
	for _, tc := range cases {
		if got := tc.req.Class(); got != tc.want {
			t.Fatalf("Class(%+v) = %s, want %s", tc.req, got, tc.want)
		}
	}
}

func TestRequestKeyStable(t *testing.T) {
	a := Request{
		Symbol:    "BTC/USDT",
		Metric:    MetricRSI,
		Timeframe: "1h",
		Params:    Params{"period": "14", "backtrack": "0"},
	}
	b := Request{
		Symbol:    "BTC/USDT",
		Metric:    MetricRSI,
		Timeframe: "1h",
		Params:    Params{"backtrack": "0", "period": "14"},
	}
	if a.Key() != b.Key() {
		t.Fatalf("equivalent requests map to different keys: %q vs %q", a.Key(), b.Key())
	}

	c := a
	c.Params = Params{"period": "21"}
	if a.Key() == c.Key() {
		t.Fatal("different params collapse onto one key")
	}

	d := a
	d.Timeframe = "4h"
	if a.Key() == d.Key() {
		t.Fatal("different timeframes collapse onto one key")
	}
}
