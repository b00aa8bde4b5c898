package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

// requestCoalescer collapses concurrent fetches for the same cache key into one upstream call.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

// newRequestCoalescer creates a new requestCoalescer with the specified timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once per key among concurrent callers. shared reports whether the
// result was delivered to more than one caller. The shared fetch runs detached from the
// first caller's cancellation and is bounded by the coalescer timeout instead, so one
// client disconnecting does not fail everyone waiting on the key.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.WeatherData, error)) (models.WeatherData, bool, error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(fetchCtx)
	})

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherData{}, res.Shared, res.Err
		}
		return res.Val.(models.WeatherData), res.Shared, nil
	case <-waitCtx.Done():
		return models.WeatherData{}, false, waitCtx.Err()
	}
}
