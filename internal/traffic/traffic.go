// Package traffic keeps sliding windows of request outcomes per component
// (inbound API traffic and each upstream provider). Health uses it to decide
// overloaded and degraded states.
package traffic

import (
	"sync"
	"time"
)

// Components tracked by the service.
const (
	ComponentAPI      = "api"
	ComponentWeather  = "weather"
	ComponentGeocoder = "geocoder"
	ComponentAdvisor  = "advisor"
)

// Outcome classifies one recorded event.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Denied
)

// DefaultRetention bounds how long timestamps are kept unless SetRetention
// changes it.
const DefaultRetention = 30 * time.Minute

var defaultTracker = NewTracker()

// Record records an outcome for component on the default tracker.
func Record(component string, outcome Outcome) {
	defaultTracker.Record(component, outcome)
}

// Snapshot returns counts for component within window from the default tracker.
func Snapshot(component string, window time.Duration) Counts {
	return defaultTracker.Snapshot(component, window)
}

// SetRetention sets how long the default tracker keeps outcomes. Callers pass
// the largest window they will query.
func SetRetention(d time.Duration) {
	defaultTracker.SetRetention(d)
}

// Reset clears the default tracker. Used by tests and POST /test/reset.
func Reset() {
	defaultTracker.Reset()
}

// Counts are the outcomes observed inside a window.
type Counts struct {
	Successes int
	Failures  int
	Denials   int
}

// Total is every outcome including denials.
func (c Counts) Total() int {
	return c.Successes + c.Failures + c.Denials
}

// ErrorPct is failures over (successes + failures), 0 when nothing completed.
func (c Counts) ErrorPct() float64 {
	completed := c.Successes + c.Failures
	if completed == 0 {
		return 0
	}
	return float64(c.Failures) * 100 / float64(completed)
}

type window struct {
	times [3][]time.Time
}

// Tracker maintains per-component sliding windows of outcome timestamps.
type Tracker struct {
	mu         sync.Mutex
	components map[string]*window
	retention  time.Duration
	now        func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{components: make(map[string]*window), retention: DefaultRetention, now: time.Now}
}

// SetRetention sets how long outcomes are kept. Values at or below zero are
// ignored.
func (t *Tracker) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.retention = d
	t.mu.Unlock()
}

// Record appends an outcome for component at the current time.
func (t *Tracker) Record(component string, outcome Outcome) {
	if outcome < Success || outcome > Denied {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	w, ok := t.components[component]
	if !ok {
		w = &window{}
		t.components[component] = w
	}
	w.times[outcome] = append(w.times[outcome], now)
	w.prune(now.Add(-t.retention))
}

// Snapshot counts outcomes for component not older than window.
func (t *Tracker) Snapshot(component string, win time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.components[component]
	if !ok {
		return Counts{}
	}
	cutoff := t.now().Add(-win)
	return Counts{
		Successes: countSince(w.times[Success], cutoff),
		Failures:  countSince(w.times[Failure], cutoff),
		Denials:   countSince(w.times[Denied], cutoff),
	}
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.components = make(map[string]*window)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// prune drops timestamps before cutoff. Timestamps are appended in order.
func (w *window) prune(cutoff time.Time) {
	for i, times := range w.times {
		j := 0
		for ; j < len(times) && times[j].Before(cutoff); j++ {
		}
		if j > 0 {
			w.times[i] = append(times[:0], times[j:]...)
		}
	}
}
