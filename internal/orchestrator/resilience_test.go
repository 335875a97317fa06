package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/firepipe/internal/logging"
)

// TestRetryable verifies which failures may be retried.
func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("flaky"), true},
		{"wrapped plain", fmt.Errorf("step: %w", errors.New("flaky")), true},
		{"permanent", Permanent(errors.New("bad config")), false},
		{"wrapped permanent", fmt.Errorf("step: %w", Permanent(errors.New("bad"))), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), false},
		{"breaker open", gobreaker.ErrOpenState, false},
		{"breaker half-open", gobreaker.ErrTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

// TestRetryConfig_BackOffStopsAfterMaxAttempts verifies the policy allows MaxAttempts-1 retries.
func TestRetryConfig_BackOffStopsAfterMaxAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.RandomizationFactor = 0

	b := cfg.newBackOff()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff(), "stop after 2 retries")
}

// TestRetryConfig_DefaultDisabled verifies retry is opt-in.
func TestRetryConfig_DefaultDisabled(t *testing.T) {
	assert.False(t, DefaultRetryConfig().Enabled())

	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 2
	assert.True(t, cfg.Enabled())
}

// TestCircuitBreakerRegistry_PerTaskName verifies breakers are isolated per task name.
func TestCircuitBreakerRegistry_PerTaskName(t *testing.T) {
	registry := NewCircuitBreakerRegistry(logging.Discard())

	lint := registry.Get("lint")
	test := registry.Get("test")

	assert.NotSame(t, lint, test)
	assert.Same(t, lint, registry.Get("lint"))

	for i := 0; i < 5; i++ {
		_, _ = lint.Execute(func() (interface{}, error) {
			return nil, errors.New("fail")
		})
	}

	assert.Equal(t, gobreaker.StateOpen, registry.State("lint"))
	assert.Equal(t, gobreaker.StateClosed, registry.State("test"))
	assert.Equal(t, gobreaker.StateClosed, registry.State("unknown"), "unknown breakers report closed")
}

// TestCircuitBreaker_UserCancellationNotCounted verifies context errors don't trip the breaker.
func TestCircuitBreaker_UserCancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreakerRegistry(logging.Discard()).Get("cancel-test")

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, context.Canceled
		})
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
