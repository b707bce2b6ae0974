package query

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache memoizes Parse results keyed by the raw query string, the way
// a host issuing the same EVI_QUERY/EVT_QUERY repeatedly (a polling
// dashboard, a recurring report) would otherwise re-tokenize and
// re-parse an identical filter tree on every call.
type Cache struct {
	cache *ristretto.Cache[string, *Query]
}

// NewCache builds an empty query cache.
func NewCache() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *Query]{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("query: new cache: %w", err)
	}
	return &Cache{cache: c}, nil
}

// Parse returns a parsed Query for raw, reusing a cached parse when
// available. The returned Query is always a shallow copy of the cached entry:
// callers may freely overwrite its top-level fields (as EviList does
// to pin a Filter) without corrupting the cache or other callers. defs
// supplies the config-driven X-LIMIT/X-GEO DIST= fallbacks applied on
// a cache miss; a cache hit returns whatever defaults produced the
// cached entry, since an Engine's config never changes mid-lifetime.
//
// A cache hit skips deadline enforcement entirely — the work it would
// have bounded already happened. A miss parses and enforces deadline
// as usual, then caches the result for next time.
func (c *Cache) Parse(raw string, deadline time.Time, defs ...Defaults) (*Query, error) {
	if cached, ok := c.cache.Get(raw); ok {
		cacheHits.Inc()
		cp := *cached
		return &cp, nil
	}
	cacheMisses.Inc()
	q, err := Parse(raw, deadline, defs...)
	if err != nil {
		return nil, err
	}
	c.cache.Set(raw, q, 1)
	c.cache.Wait()
	cp := *q
	return &cp, nil
}

// Close releases the cache's background resources.
func (c *Cache) Close() { c.cache.Close() }
