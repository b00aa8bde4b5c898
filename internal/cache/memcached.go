package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

const keyPrefix = "weather:"

// maxRelativeExp is memcached's limit for relative expirations (30 days).
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached. Items are stored in an
// envelope carrying their own expiry so stale reads work after the TTL; the
// memcached expiration is ttl plus retention.
type MemcachedCache struct {
	client    *memcache.Client
	retention time.Duration
	now       func() time.Time
}

type envelope struct {
	Value     models.WeatherData `json:"value"`
	StoredAt  time.Time          `json:"storedAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, retention time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemcachedCache{client: client, retention: retention, now: time.Now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

func (c *MemcachedCache) load(ctx context.Context, key string) (envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return envelope{}, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, err
	}
	return env, true, nil
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherData, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok || c.now().After(env.ExpiresAt) {
		return models.WeatherData{}, false, err
	}
	return env.Value, true, nil
}

func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (models.WeatherData, time.Time, bool, error) {
	env, ok, err := c.load(ctx, key)
	if err != nil || !ok || c.now().Sub(env.StoredAt) > maxAge {
		return models.WeatherData{}, time.Time{}, false, err
	}
	return env.Value, env.StoredAt, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherData, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := c.now()
	raw, err := json.Marshal(envelope{Value: value, StoredAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expiration(ttl + c.retention),
	})
}

func expiration(d time.Duration) int32 {
	sec := int32(d.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600 // fallback 1h if invalid
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
