package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
)

// LocationWarmer is implemented by the service layer to geocode a location
// name and load its weather into the cache. It lives here to avoid a
// circular dependency on the service package.
type LocationWarmer interface {
	WarmLocation(ctx context.Context, name string) error
}

// LocationSource lists location names to warm, e.g. configured tracked
// locations or every user's saved locations.
type LocationSource func(ctx context.Context) ([]string, error)

// StaticLocations returns a LocationSource for a fixed list.
func StaticLocations(names []string) LocationSource {
	return func(context.Context) ([]string, error) {
		return names, nil
	}
}

// maxWarmConcurrency bounds concurrent provider calls during one warm.
const maxWarmConcurrency = 4

// CacheWarmer prefetches weather for the locations its sources list.
type CacheWarmer struct {
	warmer  LocationWarmer
	sources []LocationSource
	logger  *zap.Logger
	timeout time.Duration

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer. logger may be nil.
func NewCacheWarmer(warmer LocationWarmer, logger *zap.Logger, sources ...LocationSource) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{warmer: warmer, sources: sources, logger: logger, timeout: 30 * time.Second}
}

// Locations merges every source, dropping duplicates and keeping first-seen
// order. A failing source is logged and skipped.
func (w *CacheWarmer) Locations(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, src := range w.sources {
		names, err := src(ctx)
		if err != nil {
			w.logger.Warn("cache warming source failed", zap.Error(err))
			continue
		}
		for _, n := range names {
			key := normalizeName(n)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// Warm fetches weather for each location concurrently through the warmer.
// Returns an error if any location failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, maxWarmConcurrency)
	for _, loc := range locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := w.warmer.WarmLocation(ctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", loc, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmOnce warms every location from the sources.
func (w *CacheWarmer) WarmOnce(ctx context.Context) error {
	return w.Warm(ctx, w.Locations(ctx))
}

// Start schedules WarmOnce every interval, starting immediately. Stop ends it.
func (w *CacheWarmer) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warming interval must be positive, got %s", interval)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("cache warmer already started")
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.WarmOnce(ctx); err != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop stops the scheduler. Safe to call when not started.
func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
