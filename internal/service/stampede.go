package service

import (
	"sync"
)

// stampedeTracker counts in-progress cache misses per weather cache key. A count above 1
// means several dashboard requests missed the same coordinates at once.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

// newStampedeTracker returns a new stampedeTracker.
func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{
		activeMisses: make(map[string]int),
	}
}

// RecordMiss increments the miss count for key and returns it. Pair with Resolve.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// Resolve marks one miss for key as finished.
func (st *stampedeTracker) Resolve(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

// Active returns the number of in-progress misses for key.
func (st *stampedeTracker) Active(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.activeMisses[key]
}
