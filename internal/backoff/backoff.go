// Package backoff implements the exact backoff formula that must satisfy
// spec §4.2's testable delay bounds; its caller is the SSE Client's
// reconnect delay (the static-info client does not retry). It does not
// delegate to cenkalti/backoff/v4 (used elsewhere for generic retries, see
// internal/resilience) because that library's randomization-factor jitter
// does not produce the required [1.3, 1.5] multiplicative band.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config parameterizes the formula: delay = min(base*factor^attempt, cap),
// then scaled by a uniform random multiplier in [jitterMin, jitterMax].
type Config struct {
	Base      time.Duration
	Factor    float64
	Cap       time.Duration
	JitterMin float64
	JitterMax float64
}

// Default is the formula named in §4.2: base=1s, factor=2, cap=30s, jitter
// 30%-50%.
func Default() Config {
	return Config{
		Base:      1000 * time.Millisecond,
		Factor:    2,
		Cap:       30000 * time.Millisecond,
		JitterMin: 1.3,
		JitterMax: 1.5,
	}
}

// Delay computes the jittered backoff delay for the given zero-based
// attempt count, using rng for the jitter draw. Pass rand.New(...) in
// production; tests can pass a seeded source for determinism.
func (c Config) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	raw := float64(c.Base) * math.Pow(c.Factor, float64(attempt))
	capped := math.Min(raw, float64(c.Cap))

	jitterRange := c.JitterMax - c.JitterMin
	multiplier := c.JitterMin
	if jitterRange > 0 {
		multiplier += rng.Float64() * jitterRange
	}
	return time.Duration(capped * multiplier)
}

// Bounds returns the unjittered lower bound and the jittered upper bound
// for attempt, i.e. [base*factor^attempt, cap]*[jitterMin, jitterMax] from
// §8's testable property 4. Useful for assertions in tests.
func (c Config) Bounds(attempt int) (lo, hi time.Duration) {
	if attempt < 0 {
		attempt = 0
	}
	raw := float64(c.Base) * math.Pow(c.Factor, float64(attempt))
	capped := math.Min(raw, float64(c.Cap))
	return time.Duration(capped), time.Duration(capped * c.JitterMax)
}
