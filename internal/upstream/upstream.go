// Package upstream holds the error taxonomy and retry policy shared by every
// third-party provider client (weather, geocoding, language model).
package upstream

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

var (
	ErrMissingAPIKey     = errors.New("provider API key not configured")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidSuggestion = errors.New("invalid suggestion from language model")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// ErrorForStatus maps a non-2xx provider status to a sentinel. Returns nil for 2xx.
func ErrorForStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrInvalidAPIKey
	case statusCode == http.StatusNotFound:
		return ErrLocationNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUpstreamFailure
	}
}

// StatusLabel buckets an HTTP status for metric labels.
func StatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// IsRetryable reports whether another attempt may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection reset")
}

// Backoff is an exponential retry schedule with 10% jitter.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultBackoff is used when a client is built without explicit retry settings.
var DefaultBackoff = Backoff{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// Delay returns the wait before the given attempt (attempt >= 1).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := float64(b.BaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// Retry runs fn up to b.Attempts times while it returns a retryable error.
// onRetry, when set, is called before every attempt after the first.
func Retry[T any](ctx context.Context, b Backoff, onRetry func(attempt int), fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(b.Delay(attempt)):
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
	}
	if attempts == 1 {
		return zero, lastErr
	}
	return zero, errors.Join(errors.New("exhausted retries"), lastErr)
}
