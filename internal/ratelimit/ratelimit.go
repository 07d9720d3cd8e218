// Package ratelimit caps outbound call rates to upstream map REST
// endpoints. Grounded on the teacher's infrastructure/ratelimit package,
// built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultStaticInfoConfig returns the default rate used for the
// static-info enrichment client: a burst of add_system events should not
// hammer the map's REST API.
func DefaultStaticInfoConfig() Config {
	return Config{RequestsPerSecond: 5, Burst: 10}
}

// Limiter wraps golang.org/x/time/rate.Limiter.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed immediately, consuming a token
// if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// AllowAt reports whether a call at time `at` may proceed.
func (l *Limiter) AllowAt(at time.Time) bool {
	return l.limiter.AllowN(at, 1)
}
