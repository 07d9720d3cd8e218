// Package resilience provides the fault-tolerance primitives used outside
// the SSE Client's own reconnect state machine: a circuit breaker for the
// Notification Coordinator's chat dispatch (§5 backpressure) and a generic
// retry helper. No component in this service calls Retry: the Registry's
// control-plane refresh waits for its next tick after a failure, and the
// static-info fetch does not retry.
//
// It is a thin adapter over github.com/sony/gobreaker/v2 and
// github.com/cenkalti/backoff/v4, mirroring the teacher's
// infrastructure/resilience package, which wraps the same two libraries
// behind a stable API so tuning changes happen in one place.
//
// The SSE Client's reconnect delay (§4.2) is NOT built on this package: its
// jitter band (30%-50% of the computed delay) does not match
// cenkalti/backoff's randomization-factor shape, and §8.4's testable
// property requires the exact formula. See internal/backoff/backoff.go.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// State mirrors gobreaker's circuit states under names local to this
// package, so callers never import gobreaker directly.
type State int

const (
	StateClosed State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a per-destination circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures   int
	Cooldown      time.Duration
	HalfOpenMax   int
	OnStateChange func(destination string, from, to State)
}

// DefaultCircuitBreakerConfig returns the defaults used for chat dispatch:
// five consecutive failures opens the breaker for 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{MaxFailures: 5, Cooldown: 30 * time.Second, HalfOpenMax: 1}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker scoped to one chat
// destination.
type CircuitBreaker struct {
	gb          *gobreaker.CircuitBreaker[any]
	destination string
}

// NewCircuitBreaker creates a CircuitBreaker for the given destination
// (e.g. a Discord channel ID).
func NewCircuitBreaker(destination string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	maxFailures := uint32(cfg.MaxFailures)

	settings := gobreaker.Settings{
		Name:        destination,
		MaxRequests: uint32(cfg.HalfOpenMax),
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			cfg.OnStateChange(destination, State(from), State(to))
		}
	}

	return &CircuitBreaker{gb: gobreaker.NewCircuitBreaker[any](settings), destination: destination}
}

// Execute runs fn with circuit-breaker protection. When the breaker is
// open, events for this destination are dropped without calling fn, per
// §5's backpressure rule.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.gb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() State {
	return State(cb.gb.State())
}

// RetryConfig configures the generic retry helper.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults for outbound REST calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2.0}
}

// Retry executes fn with exponential backoff via cenkalti/backoff,
// cancellable through ctx.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.MaxElapsedTime = 0

	maxRetries := uint64(cfg.MaxAttempts - 1)
	withMax := backoff.WithMaxRetries(bo, maxRetries)
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(fn, withCtx)
}
