package traffic

import (
	"sync"
	"testing"
	"time"
)

// TestSnapshot_Empty verifies that an unknown component reports zero counts.
func TestSnapshot_Empty(t *testing.T) {
	Reset()
	if c := Snapshot(ComponentAPI, time.Minute); c.Total() != 0 {
		t.Errorf("Snapshot().Total() = %d, want 0", c.Total())
	}
}

// TestRecord_CountsPerComponent verifies outcomes are kept separately per component.
func TestRecord_CountsPerComponent(t *testing.T) {
	Reset()
	defer Reset()
	Record(ComponentAPI, Success)
	Record(ComponentAPI, Denied)
	Record(ComponentAPI, Denied)
	Record(ComponentWeather, Failure)

	api := Snapshot(ComponentAPI, time.Minute)
	if api.Successes != 1 || api.Denials != 2 || api.Failures != 0 {
		t.Errorf("api counts = %+v, want 1 success, 2 denials", api)
	}
	if api.Total() != 3 {
		t.Errorf("api total = %d, want 3", api.Total())
	}
	weather := Snapshot(ComponentWeather, time.Minute)
	if weather.Failures != 1 || weather.Total() != 1 {
		t.Errorf("weather counts = %+v, want 1 failure", weather)
	}
}

// TestCounts_ErrorPct verifies denials are excluded from the error rate.
func TestCounts_ErrorPct(t *testing.T) {
	c := Counts{Successes: 3, Failures: 1, Denials: 10}
	if got := c.ErrorPct(); got != 25 {
		t.Errorf("ErrorPct() = %v, want 25", got)
	}
	if got := (Counts{Denials: 4}).ErrorPct(); got != 0 {
		t.Errorf("ErrorPct() with no completions = %v, want 0", got)
	}
}

// TestTracker_WindowExcludesOld verifies the window cutoff and pruning.
func TestTracker_WindowExcludesOld(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.Record(ComponentGeocoder, Failure)
	now = now.Add(90 * time.Second)
	tr.Record(ComponentGeocoder, Success)

	if c := tr.Snapshot(ComponentGeocoder, time.Minute); c.Failures != 0 || c.Successes != 1 {
		t.Errorf("1m window = %+v, want only the recent success", c)
	}
	if c := tr.Snapshot(ComponentGeocoder, 2*time.Minute); c.Total() != 2 {
		t.Errorf("2m window total = %d, want 2", c.Total())
	}

	now = now.Add(DefaultRetention + time.Second)
	tr.Record(ComponentGeocoder, Success)
	if c := tr.Snapshot(ComponentGeocoder, time.Hour); c.Total() != 1 {
		t.Errorf("after prune total = %d, want 1", c.Total())
	}
}

// TestTracker_Concurrent verifies concurrent Record calls are safe.
func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(ComponentAdvisor, Success)
		}()
	}
	wg.Wait()
	if c := tr.Snapshot(ComponentAdvisor, time.Minute); c.Successes != 50 {
		t.Errorf("Successes = %d, want 50", c.Successes)
	}
}

// TestTracker_KeepsOutcomesForLongWindows verifies outcomes stay countable for
// the whole of a long idle window.
func TestTracker_KeepsOutcomesForLongWindows(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }

	tr.Record(ComponentAPI, Success)
	now = now.Add(6 * time.Minute)
	tr.Record(ComponentAPI, Success)

	if c := tr.Snapshot(ComponentAPI, 10*time.Minute); c.Successes != 2 {
		t.Errorf("10m window successes = %d, want 2", c.Successes)
	}
}

// TestTracker_SetRetention verifies retention can be raised and ignores
// non-positive values.
func TestTracker_SetRetention(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.now = func() time.Time { return now }
	tr.SetRetention(time.Hour)
	tr.SetRetention(0)

	tr.Record(ComponentAPI, Success)
	now = now.Add(45 * time.Minute)
	tr.Record(ComponentAPI, Success)
	if c := tr.Snapshot(ComponentAPI, time.Hour); c.Successes != 2 {
		t.Errorf("1h retention successes = %d, want 2", c.Successes)
	}

	now = now.Add(time.Hour)
	tr.Record(ComponentAPI, Success)
	if c := tr.Snapshot(ComponentAPI, 3*time.Hour); c.Successes != 1 {
		t.Errorf("after prune successes = %d, want 1", c.Successes)
	}
}
