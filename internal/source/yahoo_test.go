package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

const yahooChartBody = `{
  "chart": {
    "result": [{
      "meta": {"regularMarketPrice": 231.59, "chartPreviousClose": 229.0},
      "timestamp": [1755500400, 1755586800, 1755673200],
      "indicators": {"quote": [{"close": [228.5, null, 231.59]}]}
    }],
    "error": null
  }
}`

func newYahooAgainst(srv *httptest.Server) *Yahoo {
	return NewYahoo(YahooOptions{
		BaseURL: srv.URL,
		Timeout: time.Second,
	}, noopLogger())
}

func TestYahooFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(yahooChartBody))
	}))
	defer srv.Close()

	res, err := newYahooAgainst(srv).Fetch(context.Background(), market.Request{Symbol: "AAPL", Metric: market.MetricPrice})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if v, _ := res.Value(market.FieldValue); !v.Equal(decimal.NewFromFloat(231.59)) {
		t.Fatalf("value = %s", v)
	}
	if _, ok := res.Value(market.FieldChangePercent); !ok {
		t.Fatal("changePercent missing")
	}
}

func TestYahooFetchUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	_, err := newYahooAgainst(srv).Fetch(context.Background(), market.Request{Symbol: "NOPE", Metric: market.MetricPrice})
	if kind := market.FailureKindOf(err); err == nil || kind != market.KindNotFound {
		t.Fatalf("err = %v, kind = %s, want not_found", err, kind)
	}
}

func TestYahooSeriesSkipsNilCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("range"); got != "1mo" {
			t.Errorf("range query = %q, want 1mo", got)
		}
		_, _ = w.Write([]byte(yahooChartBody))
	}))
	defer srv.Close()

	points, err := newYahooAgainst(srv).Series(context.Background(), "AAPL", "1mo")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2 (nil close skipped)", len(points))
	}
	if !points[0].Close.Equal(decimal.NewFromFloat(228.5)) {
		t.Fatalf("first close = %s", points[0].Close)
	}
	if !points[1].At.After(points[0].At) {
		t.Fatal("points out of order")
	}
}
