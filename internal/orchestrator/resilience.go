package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry of failed tasks.
// MaxAttempts <= 1 disables retry.
type RetryConfig struct {
	MaxAttempts         int           // Total attempts per task, including the first
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Stop retrying after this long, 0 for no limit (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration. Retry is off
// until MaxAttempts is raised.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         1,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Enabled reports whether failed tasks may run again.
func (c RetryConfig) Enabled() bool {
	return c.MaxAttempts > 1
}

// newBackOff builds the delay policy for one task's retries.
func (c RetryConfig) newBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialInterval
	policy.MaxInterval = c.MaxInterval
	policy.MaxElapsedTime = c.MaxElapsedTime
	policy.Multiplier = c.Multiplier
	policy.RandomizationFactor = c.RandomizationFactor
	policy.Reset()

	return backoff.WithMaxRetries(policy, uint64(c.MaxAttempts-1))
}

// retryable reports whether a failed attempt may be retried.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsPermanent(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	}
	return true
}

// CircuitBreakerRegistry manages one circuit breaker per task name.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
// A nil logger uses slog.Default.
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given task name, creating it on
// first use.
func (r *CircuitBreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // test requests in half-open state
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// cancellation is the caller's doing, not the task's
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[name] = cb
	return cb
}

// State returns the state of the named breaker, closed if it does not exist.
func (r *CircuitBreakerRegistry) State(name string) gobreaker.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}
