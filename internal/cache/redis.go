package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a TTL implementation backed by go-redis, selected at
// construction time when REDIS_URL is set so dedup state and per-map
// caches can be shared across replicas.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedis dials url (a redis:// connection string) and returns a Redis TTL
// cache. defaultTTL is used whenever Set is called with ttl<=0.
func NewRedis(url string, defaultTTL time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Redis{client: redis.NewClient(opts), defaultTTL: defaultTTL}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// InvalidatePrefix deletes every key with the given prefix using a
// non-blocking SCAN rather than KEYS, so a large keyspace does not stall
// other clients sharing the same Redis instance.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Client exposes the raw redis.Client for callers (e.g. internal/persistence)
// that need operations beyond the TTL contract, such as a persistent SET
// member list with no expiration.
func (r *Redis) Client() *redis.Client {
	return r.client
}
