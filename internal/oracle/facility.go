package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// cachedLocator memoizes facility lookups. Coordinates are bucketed to
// ~100m so nearby queries share an entry.
type cachedLocator struct {
	inner FacilityLocator
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]locatorEntry
}

type locatorEntry struct {
	facility  *NearestFacility
	fetchedAt time.Time
}

// CachedLocator wraps a FacilityLocator with a TTL cache.
func CachedLocator(inner FacilityLocator, ttl time.Duration) FacilityLocator {
	return &cachedLocator{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]locatorEntry),
	}
}

func (c *cachedLocator) FindNearest(ctx context.Context, lat, lng float64, kind FacilityKind) (*NearestFacility, error) {
	key := fmt.Sprintf("%.3f:%.3f:%s", lat, lng, kind)

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && time.Since(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.facility, nil
	}
	c.mu.Unlock()

	facility, err := c.inner.FindNearest(ctx, lat, lng, kind)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = locatorEntry{facility: facility, fetchedAt: time.Now()}
	c.mu.Unlock()
	return facility, nil
}
