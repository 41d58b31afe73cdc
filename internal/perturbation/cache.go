// Package perturbation caches current general-perturbation payloads per
// satellite with a bounded staleness window.
//
// Eviction is purely lazy: an entry past the maximum age is simply treated
// as a miss on the next request. Memory is bounded by the number of
// distinct catalog numbers ever requested, which in turn is bounded by the
// size of the satellite catalog.
package perturbation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/TilBlechschmidt/gpcache/internal/metrics"
)

// gpPath is the Space-Track query prefix for current orbital elements by
// catalog number.
const gpPath = "basicspacedata/query/class/gp/NORAD_CAT_ID"

// DefaultMaxAge bounds how long a cached payload is served before the next
// request triggers a refetch.
const DefaultMaxAge = 4 * time.Hour

// Querier issues authenticated queries against the upstream service.
type Querier interface {
	Query(ctx context.Context, path string) ([]byte, error)
}

type entry struct {
	fetchedAt time.Time
	payload   string
}

// Cache is a time-bounded per-satellite cache of GP payloads. Safe for
// concurrent use; concurrent misses for the same catalog number coalesce
// into a single upstream fetch.
type Cache struct {
	client Querier
	maxAge time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[int]entry
	group   singleflight.Group

	now func() time.Time // stubbed in tests
}

// NewCache creates a Cache serving entries up to maxAge old.
func NewCache(client Querier, maxAge time.Duration, logger *slog.Logger) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{
		client:  client,
		maxAge:  maxAge,
		logger:  logger,
		entries: make(map[int]entry),
		now:     time.Now,
	}
}

// GetOrFetch returns the GP payload for noradID, fetching it upstream when
// no entry exists or the stored one is older than the maximum age.
//
// A failed fetch never mutates the cache: an existing stale entry stays in
// place and the next call retries the fetch.
func (c *Cache) GetOrFetch(ctx context.Context, noradID int) (string, error) {
	if payload, ok := c.lookup(noradID); ok {
		metrics.IncGPCacheHits()
		return payload, nil
	}
	metrics.IncGPCacheMisses()

	v, err, _ := c.group.Do(strconv.Itoa(noradID), func() (interface{}, error) {
		// A caller that shared this flight may have stored the entry
		// between our lookup above and joining the group.
		if payload, ok := c.lookup(noradID); ok {
			return payload, nil
		}

		body, err := c.client.Query(ctx, fmt.Sprintf("%s/%d", gpPath, noradID))
		if err != nil {
			return nil, fmt.Errorf("fetching GP data for %d: %w", noradID, err)
		}
		payload := string(body)

		c.mu.Lock()
		c.entries[noradID] = entry{fetchedAt: c.now(), payload: payload}
		c.mu.Unlock()

		c.logger.Debug("fetched GP data", "norad_id", noradID, "bytes", len(payload))
		return payload, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookup returns the entry for noradID if one exists and is still fresh.
func (c *Cache) lookup(noradID int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[noradID]
	if !ok || c.now().Sub(e.fetchedAt) >= c.maxAge {
		return "", false
	}
	return e.payload, true
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
