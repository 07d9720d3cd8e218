// Package persistence implements the external persistent-values store that
// backs the PrioritySet (spec §3, §6): a sequence of 32-bit fingerprints
// keyed by the literal "priority_systems", persisted across restarts. Two
// implementations are provided: a Redis-backed one (reusing the cache
// package's client when REDIS_URL is set) and a JSON-file-backed one for
// standalone deployments — the same construction-time interface-wiring
// pattern used throughout this service.
package persistence

import (
	"context"
	"encoding/json"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// priorityKey is the literal key spec §6 names for the priority-systems
// list in the persistent-values store.
const priorityKey = "priority_systems"

// Store is the persistent-values contract.
type Store interface {
	LoadPrioritySystems(ctx context.Context) ([]uint32, error)
	SavePrioritySystems(ctx context.Context, fingerprints []uint32) error
}

// RedisStore persists the priority-systems list as a Redis SET of string-
// encoded fingerprints, one member per fingerprint so SavePrioritySystems
// can replace the set atomically via a pipeline.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis.Client (typically the same one
// backing internal/cache.Redis).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) LoadPrioritySystems(ctx context.Context) ([]uint32, error) {
	members, err := s.client.SMembers(ctx, priorityKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]uint32, 0, len(members))
	for _, m := range members {
		if v, err := strconv.ParseUint(m, 10, 32); err == nil {
			out = append(out, uint32(v))
		}
	}
	return out, nil
}

func (s *RedisStore) SavePrioritySystems(ctx context.Context, fingerprints []uint32) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, priorityKey)
	if len(fingerprints) > 0 {
		members := make([]interface{}, 0, len(fingerprints))
		for _, fp := range fingerprints {
			members = append(members, strconv.FormatUint(uint64(fp), 10))
		}
		pipe.SAdd(ctx, priorityKey, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// FileStore persists the priority-systems list as a JSON array in a local
// file, used when no Redis is configured.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LoadPrioritySystems(_ context.Context) ([]uint32, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint32
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) SavePrioritySystems(_ context.Context, fingerprints []uint32) error {
	if fingerprints == nil {
		fingerprints = []uint32{}
	}
	data, err := json.Marshal(fingerprints)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
