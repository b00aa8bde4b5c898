// Package saved keeps each user's favorite locations.
package saved

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MaxLocations is the number of locations a user may save.
const MaxLocations = 5

var (
	ErrLimitReached = errors.New("saved location limit reached")
	ErrAlreadySaved = errors.New("location already saved")
	ErrNotFound     = errors.New("saved location not found")
	ErrEmptyName    = errors.New("location name is empty")
)

// Store persists saved locations per user. Add and Remove return the user's
// list after the change. Lists keep insertion order.
type Store interface {
	List(ctx context.Context, user string) ([]string, error)
	Add(ctx context.Context, user, name string) ([]string, error)
	Remove(ctx context.Context, user, name string) ([]string, error)
	Users(ctx context.Context) ([]string, error)
}

// appendLocation returns list with name added, enforcing MaxLocations and
// case-insensitive uniqueness.
func appendLocation(list []string, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if indexOf(list, name) >= 0 {
		return nil, ErrAlreadySaved
	}
	if len(list) >= MaxLocations {
		return nil, ErrLimitReached
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, name), nil
}

func removeLocation(list []string, name string) ([]string, error) {
	i := indexOf(list, strings.TrimSpace(name))
	if i < 0 {
		return nil, ErrNotFound
	}
	out := make([]string, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), nil
}

func indexOf(list []string, name string) int {
	for i, l := range list {
		if strings.EqualFold(l, name) {
			return i
		}
	}
	return -1
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string][]string)}
}

func (s *MemoryStore) List(ctx context.Context, user string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.lists[user]...), nil
}

func (s *MemoryStore) Add(ctx context.Context, user, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := appendLocation(s.lists[user], name)
	if err != nil {
		return nil, err
	}
	s.lists[user] = next
	return append([]string{}, next...), nil
}

func (s *MemoryStore) Remove(ctx context.Context, user, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := removeLocation(s.lists[user], name)
	if err != nil {
		return nil, err
	}
	if len(next) == 0 {
		delete(s.lists, user)
	} else {
		s.lists[user] = next
	}
	return append([]string{}, next...), nil
}

// Users returns every user with at least one saved location, sorted.
func (s *MemoryStore) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.lists))
	for u := range s.lists {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// AllLocations lists every location any user has saved, for cache warming.
// Duplicates across users are left for the caller to merge.
func AllLocations(store Store) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		users, err := store.Users(ctx)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, u := range users {
			list, err := store.List(ctx, u)
			if err != nil {
				return nil, err
			}
			out = append(out, list...)
		}
		return out, nil
	}
}
