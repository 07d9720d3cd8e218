package notify

import (
	"context"
	"time"

	"github.com/guarzo/wanderer-notifier/internal/cache"
)

// DedupCache guards against re-notifying on the same logical event within
// a TTL window (spec §4.5: "compute an event fingerprint ... consult the
// DedupCache; if present, drop. Otherwise insert with the configured TTL").
type DedupCache struct {
	ttl   cache.TTL
	defaultTTL time.Duration
}

// NewDedupCache wraps ttl with the given default dedup window.
func NewDedupCache(ttl cache.TTL, defaultTTL time.Duration) *DedupCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &DedupCache{ttl: ttl, defaultTTL: defaultTTL}
}

// SeenAndMark reports whether key was already present. If not, it is
// inserted before returning so a racing second call observes it.
func (d *DedupCache) SeenAndMark(ctx context.Context, key string) (bool, error) {
	seen, err := d.ttl.Has(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		return true, nil
	}
	if err := d.ttl.Set(ctx, key, "1", d.defaultTTL); err != nil {
		return false, err
	}
	return false, nil
}
