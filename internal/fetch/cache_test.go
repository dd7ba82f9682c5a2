package fetch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alertwatch/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func resultWithValue(v int64) market.FetchResult {
	return market.FetchResult{
		Origin:    "test",
		Values:    map[string]decimal.Decimal{market.FieldValue: decimal.NewFromInt(v)},
		FetchedAt: time.Now().UTC(),
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	c := NewCache(time.Minute, noopLogger())
	calls := 0
	fetch := func() (market.FetchResult, error) {
		calls++
		return resultWithValue(int64(calls)), nil
	}

	for i := 0; i < 3; i++ {
		res, err := c.GetOrFetch("k", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch: %v", err)
		}
		if v, _ := res.Value(market.FieldValue); !v.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("served value %s, want 1", v)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch ran %d times, want 1", calls)
	}
}

func TestCacheExpiredEntryRefetches(t *testing.T) {
	c := NewCache(10*time.Millisecond, noopLogger())
	calls := 0
	fetch := func() (market.FetchResult, error) {
		calls++
		return resultWithValue(int64(calls)), nil
	}

	if _, err := c.GetOrFetch("k", fetch); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	res, err := c.GetOrFetch("k", fetch)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if v, _ := res.Value(market.FieldValue); !v.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("stale entry served after TTL, value %s", v)
	}
}

func TestCacheFailuresNotCached(t *testing.T) {
	c := NewCache(time.Minute, noopLogger())
	calls := 0

	if _, err := c.GetOrFetch("k", func() (market.FetchResult, error) {
		calls++
		return market.FetchResult{}, errors.New("boom")
	}); err == nil {
		t.Fatal("expected error")
	}

	res, err := c.GetOrFetch("k", func() (market.FetchResult, error) {
		calls++
		return resultWithValue(7), nil
	})
	if err != nil {
		t.Fatalf("fetch after failure: %v", err)
	}
	if v, _ := res.Value(market.FieldValue); !v.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("value = %s, want 7", v)
	}
	if calls != 2 {
		t.Fatalf("fetch ran %d times, want 2", calls)
	}
}

func TestCacheCollapsesConcurrentFetches(t *testing.T) {
	c := NewCache(time.Minute, noopLogger())

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func() (market.FetchResult, error) {
		calls.Add(1)
		<-release
		return resultWithValue(1), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrFetch("k", fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fetch ran %d times, want 1", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute, noopLogger())
	calls := 0
	fetch := func() (market.FetchResult, error) {
		calls++
		return resultWithValue(int64(calls)), nil
	}

	if _, err := c.GetOrFetch("k", fetch); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	c.Invalidate("k")
	if _, err := c.GetOrFetch("k", fetch); err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetch ran %d times, want 2", calls)
	}
}
