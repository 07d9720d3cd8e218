package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var states []State
	cb := NewCircuitBreaker("ops", CircuitBreakerConfig{
		MaxFailures: 2,
		Cooldown:    50 * time.Millisecond,
		HalfOpenMax: 1,
		OnStateChange: func(_ string, from, to State) {
			states = append(states, to)
		},
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		err := cb.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())
	assert.Contains(t, states, StateOpen)
}

func TestCircuitBreaker_ClosesAfterCooldownOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("ops", CircuitBreakerConfig{MaxFailures: 1, Cooldown: 20 * time.Millisecond, HalfOpenMax: 1})

	_ = cb.Execute(func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func() error {
		attempts++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond}, func() error {
		attempts++
		return errors.New("fails")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}
