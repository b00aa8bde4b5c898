package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

// Cache stores normalized weather per provider and location.
// Get returns only unexpired entries. GetStale returns an entry stored within
// maxAge even if it has expired, together with the time it was stored.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherData, bool, error)
	GetStale(ctx context.Context, key string, maxAge time.Duration) (models.WeatherData, time.Time, bool, error)
	Set(ctx context.Context, key string, value models.WeatherData, ttl time.Duration) error
}

// DefaultRetention is how long entries outlive their TTL for stale reads.
const DefaultRetention = time.Hour

// Key builds the cache key for provider at lat/lon. Coordinates are rounded
// to two decimals (about 1 km) so nearby clicks share an entry. A caller-supplied
// IANA zone is part of the key because daily buckets are cut in that zone.
func Key(provider string, lat, lon float64, timezone string) string {
	key := fmt.Sprintf("%s:%.2f,%.2f", strings.ToLower(provider), lat, lon)
	if tz := strings.TrimSpace(timezone); tz != "" {
		key += "@" + tz
	}
	return key
}

// InMemoryCache implements Cache using a mutex-guarded map. Expired entries
// are kept for the retention period to serve stale reads, then dropped on access.
type InMemoryCache struct {
	mu        sync.Mutex
	data      map[string]cacheEntry
	retention time.Duration
	now       func() time.Time
}

type cacheEntry struct {
	value     models.WeatherData
	storedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache. retention <= 0 uses DefaultRetention.
func NewInMemoryCache(retention time.Duration) *InMemoryCache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryCache{
		data:      make(map[string]cacheEntry),
		retention: retention,
		now:       time.Now,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherData, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherData{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok || c.now().After(entry.expiresAt) {
		return models.WeatherData{}, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (models.WeatherData, time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.WeatherData{}, time.Time{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(key)
	if !ok || c.now().Sub(entry.storedAt) > maxAge {
		return models.WeatherData{}, time.Time{}, false, nil
	}
	return entry.value, entry.storedAt, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherData, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.data[key] = cacheEntry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Len returns the number of retained entries.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// lookup returns the entry for key, deleting it once past retention. Caller holds mu.
func (c *InMemoryCache) lookup(key string) (cacheEntry, bool) {
	entry, ok := c.data[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().After(entry.expiresAt.Add(c.retention)) {
		delete(c.data, key)
		return cacheEntry{}, false
	}
	return entry, true
}
