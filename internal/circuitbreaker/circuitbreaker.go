package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects a provider by opening after consecutive failures
// and letting probe requests through once the open timeout has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	component        string
	isFailure        func(error) bool
	onStateChange    func(component string, from, to State)
	now              func() time.Time
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	Component        string
	// IsFailure decides which errors count toward opening. Defaults to DefaultIsFailure.
	IsFailure     func(error) bool
	OnStateChange func(component string, from, to State)
}

// DefaultIsFailure ignores caller-side outcomes (unknown location, cancelled
// request) so only provider health moves the breaker.
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, upstream.ErrLocationNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// New creates a new CircuitBreaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = DefaultIsFailure
	}
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		component:        cfg.Component,
		isFailure:        cfg.IsFailure,
		onStateChange:    cfg.OnStateChange,
		now:              time.Now,
	}
}

// Call runs fn when the circuit allows it. While open it fails fast with
// upstream.ErrCircuitOpen. A nil breaker always runs fn.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if cb == nil {
		return fn(ctx)
	}
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.timeout {
		cb.mu.Unlock()
		return fmt.Errorf("%s: %w", cb.component, upstream.ErrCircuitOpen)
	}
	cb.successCount = 0
	transition := cb.setStateLocked(StateHalfOpen)
	cb.mu.Unlock()
	transition()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	transition := func() {}
	if cb.isFailure(err) {
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.failureCount = 0
			cb.openedAt = cb.now()
			transition = cb.setStateLocked(StateOpen)
		}
	} else {
		cb.failureCount = 0
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.successThreshold {
				cb.successCount = 0
				transition = cb.setStateLocked(StateClosed)
			}
		}
	}
	cb.mu.Unlock()
	transition()
}

// setStateLocked changes state and returns the callback to run after unlocking.
func (cb *CircuitBreaker) setStateLocked(to State) func() {
	from := cb.state
	cb.state = to
	if from == to || cb.onStateChange == nil {
		return func() {}
	}
	return func() { cb.onStateChange(cb.component, from, to) }
}

// State returns the current state (for metrics and health).
func (cb *CircuitBreaker) State() State {
	if cb == nil {
		return StateClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
