package roster

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCache is an in-process Cache. It uses go-cache for expiry and
// singleflight so concurrent misses share one fetch.
type MemoryCache struct {
	cache *cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewMemoryCache creates a MemoryCache whose entries live for ttl.
//
// Parameters:
//   - ttl: Lifetime of a cached listing; values <= 0 use DefaultTTL
//
// Returns:
//   - A new MemoryCache
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &MemoryCache{
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Names implements Cache.
func (c *MemoryCache) Names(ctx context.Context, fetch FetchFunc) ([]string, error) {
	if names, ok := c.cached(); ok {
		return names, nil
	}

	val, err, _ := c.group.Do(rosterKey, func() (any, error) {
		// Another caller may have filled the cache while we queued.
		if names, ok := c.cached(); ok {
			return names, nil
		}

		names, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(rosterKey, slices.Clone(names), c.ttl)
		return names, nil
	})
	if err != nil {
		return nil, err
	}

	names, ok := val.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected roster type %T", val)
	}

	return slices.Clone(names), nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(rosterKey)
	return nil
}

func (c *MemoryCache) cached() ([]string, bool) {
	val, found := c.cache.Get(rosterKey)
	if !found {
		return nil, false
	}

	names, ok := val.([]string)
	if !ok {
		return nil, false
	}

	return slices.Clone(names), true
}
