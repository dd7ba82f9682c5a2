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

const tasePage = `<html><script>
var security = {"SecurityId":"1104249","LastPrice":"1,234.5","OpeningPrice":"1,200.0"};
</script></html>`

func newTaseAgainst(srv *httptest.Server, codes map[string]string) *Tase {
	return NewTase(TaseOptions{
		BaseURL: srv.URL,
		Codes:   codes,
		Timeout: time.Second,
	}, noopLogger())
}

func TestTaseFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/en/market_data/security/1104249/major_data" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(tasePage))
	}))
	defer srv.Close()

	tase := newTaseAgainst(srv, map[string]string{"PHOE.TA": "1104249"})
	res, err := tase.Fetch(context.Background(), market.Request{Symbol: "PHOE.TA", Metric: market.MetricPrice})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if v, _ := res.Value(market.FieldValue); !v.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("value = %s, want 1234.5", v)
	}

	chg, ok := res.Value(market.FieldChangePercent)
	if !ok {
		t.Fatal("changePercent missing")
	}
	want := decimal.RequireFromString("34.5").Div(decimal.RequireFromString("1200")).Mul(decimal.NewFromInt(100))
	if !chg.Equal(want) {
		t.Fatalf("changePercent = %s, want %s", chg, want)
	}
}

func TestTaseFetchUnconfiguredTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request made for unconfigured ticker")
	}))
	defer srv.Close()

	tase := newTaseAgainst(srv, nil)
	_, err := tase.Fetch(context.Background(), market.Request{Symbol: "PHOE.TA", Metric: market.MetricPrice})
	if kind := market.FailureKindOf(err); err == nil || kind != market.KindNotFound {
		t.Fatalf("err = %v, kind = %s, want not_found", err, kind)
	}
}

func TestTaseFetchPageWithoutPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>redesigned page</html>`))
	}))
	defer srv.Close()

	tase := newTaseAgainst(srv, map[string]string{"PHOE.TA": "1104249"})
	_, err := tase.Fetch(context.Background(), market.Request{Symbol: "PHOE.TA", Metric: market.MetricPrice})
	if kind := market.FailureKindOf(err); err == nil || kind != market.KindBadPayload {
		t.Fatalf("err = %v, kind = %s, want bad_payload", err, kind)
	}
}

func TestTaseFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tase := newTaseAgainst(srv, map[string]string{"PHOE.TA": "1104249"})
	_, err := tase.Fetch(context.Background(), market.Request{Symbol: "PHOE.TA", Metric: market.MetricPrice})
	if kind := market.FailureKindOf(err); err == nil || kind != market.KindRateLimited {
		t.Fatalf("err = %v, kind = %s, want rate_limited", err, kind)
	}
}
