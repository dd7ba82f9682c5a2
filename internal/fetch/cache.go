package fetch

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"alertwatch/internal/market"
)

// Cache memoises fetch results for a short TTL with single-flight
// semantics: concurrent requests for an identical key share one
// underlying fetch, so N rules watching the same tuple cost one call
// per tick instead of N.
type Cache struct {
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	result    market.FetchResult
	expiresAt time.Time
}

// NewCache constructs a cache with the given entry TTL.
func NewCache(ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{
		ttl:     ttl,
		logger:  logger.With().Str("component", "fetch_cache").Logger(),
		entries: make(map[string]cacheEntry),
	}
}

// GetOrFetch returns the cached value for key, or runs fetchFn exactly
// once across all concurrent callers and caches its result. Expired
// entries are treated as absent. Failures are never cached.
func (c *Cache) GetOrFetch(key string, fetchFn func() (market.FetchResult, error)) (market.FetchResult, error) {
	if res, ok := c.lookup(key); ok {
		return res, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated
		// the entry between the miss and this callback.
		if res, ok := c.lookup(key); ok {
			return res, nil
		}
		res, err := fetchFn()
		if err != nil {
			return market.FetchResult{}, err
		}
		c.store(key, res)
		return res, nil
	})
	if err != nil {
		return market.FetchResult{}, err
	}
	if shared {
		c.logger.Debug().Str("key", key).Msg("fetch collapsed onto in-flight request")
	}
	return v.(market.FetchResult), nil
}

// Invalidate drops a single key, used by tests and manual refresh.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) lookup(key string) (market.FetchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return market.FetchResult{}, false
	}
	return entry.result, true
}

func (c *Cache) store(key string, res market.FetchResult) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{result: res, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
