package saved

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyPrefix = "saved:"
	usersKey  = "saved-users"

	// casAttempts bounds retries when another writer wins a CompareAndSwap.
	casAttempts = 5
)

// ErrConflict is returned when concurrent writers keep winning the update.
var ErrConflict = errors.New("saved locations changed concurrently")

// MemcachedStore keeps each user's list as one JSON item updated with
// CompareAndSwap, plus an index item of user IDs for cache warming.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStore {
	var servers []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			servers = append(servers, a)
		}
	}
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
	return &MemcachedStore{client: client}
}

// userKey hashes the user ID so arbitrary IDs fit memcached's key rules.
func userKey(user string) string {
	sum := sha256.Sum256([]byte(user))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (s *MemcachedStore) List(ctx context.Context, user string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, _, err := s.load(userKey(user))
	return list, err
}

func (s *MemcachedStore) Add(ctx context.Context, user, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next, err := s.update(userKey(user), func(list []string) ([]string, error) {
		return appendLocation(list, name)
	})
	if err != nil {
		return nil, err
	}
	_, err = s.update(usersKey, func(users []string) ([]string, error) {
		for _, u := range users {
			if u == user {
				return nil, errUnchanged
			}
		}
		return append(users, user), nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, fmt.Errorf("index user: %w", err)
	}
	return next, nil
}

func (s *MemcachedStore) Remove(ctx context.Context, user, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.update(userKey(user), func(list []string) ([]string, error) {
		return removeLocation(list, name)
	})
}

// Users returns every user that has ever saved a location, sorted.
func (s *MemcachedStore) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users, _, err := s.load(usersKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}

// Ping checks if memcached is reachable.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

// errUnchanged aborts an update that would not modify the stored list.
var errUnchanged = errors.New("unchanged")

func (s *MemcachedStore) load(key string) ([]string, *memcache.Item, error) {
	item, err := s.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return []string{}, nil, nil
		}
		return nil, nil, err
	}
	var list []string
	if err := json.Unmarshal(item.Value, &list); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return list, item, nil
}

// update applies fn to the stored list and writes the result, retrying on
// CAS conflicts. A missing item is created with Add so concurrent creators
// also conflict.
func (s *MemcachedStore) update(key string, fn func([]string) ([]string, error)) ([]string, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		list, item, err := s.load(key)
		if err != nil {
			return nil, err
		}
		next, err := fn(list)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return nil, err
		}

		if item == nil {
			err = s.client.Add(&memcache.Item{Key: key, Value: raw})
		} else {
			item.Value = raw
			err = s.client.CompareAndSwap(item)
		}
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, memcache.ErrNotStored), errors.Is(err, memcache.ErrCASConflict):
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrConflict
}
