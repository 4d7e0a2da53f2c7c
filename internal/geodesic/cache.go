package geodesic

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize bounds the number of locator pairs kept in memory.
const DefaultCacheSize = 512

// CacheObserver is notified of every cache lookup.
type CacheObserver func(hit bool)

// CachedCalculator wraps a Calculator with an LRU cache. A live feed keeps
// asking for the same receiver/sender pairs, so most lookups are hits.
type CachedCalculator struct {
	inner    Calculator
	cache    *lru.Cache
	observer CacheObserver
}

type cacheKey struct {
	from   string
	to     string
	center bool
}

// Option configures a CachedCalculator.
type Option func(*CachedCalculator)

// WithObserver reports cache hits and misses to fn.
func WithObserver(fn CacheObserver) Option {
	return func(c *CachedCalculator) { c.observer = fn }
}

// NewCachedCalculator creates a cache decorator around inner holding at most
// maxEntries results.
func NewCachedCalculator(inner Calculator, maxEntries int, opts ...Option) (*CachedCalculator, error) {
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create geodesic cache: %w", err)
	}
	c := &CachedCalculator{inner: inner, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DistanceBearing returns the cached result for the pair or computes and
// stores it. Failures are not cached.
func (c *CachedCalculator) DistanceBearing(from, to string, center bool) (DistanceBearing, error) {
	key := cacheKey{from: from, to: to, center: center}
	if v, ok := c.cache.Get(key); ok {
		c.observe(true)
		return v.(DistanceBearing), nil
	}
	c.observe(false)

	result, err := c.inner.DistanceBearing(from, to, center)
	if err != nil {
		return result, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// Len returns the number of cached pairs.
func (c *CachedCalculator) Len() int { return c.cache.Len() }

func (c *CachedCalculator) observe(hit bool) {
	if c.observer != nil {
		c.observer(hit)
	}
}
