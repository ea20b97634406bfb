// Package lockstore implements the at-most-one-lock and live-mapping
// primitives on top of Redis, grounded on circuitbreaker.RedisWrapper.
package lockstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/canonical"
	"github.com/meetbot/platform/internal/circuitbreaker"
)

// Store provides try_lock/release/put_mapping/get_mapping over Redis.
type Store struct {
	redis *circuitbreaker.RedisWrapper
}

func New(redis *circuitbreaker.RedisWrapper) *Store {
	return &Store{redis: redis}
}

func lockKey(t canonical.Triple) string { return "lock:" + t.String() }
func mapKey(t canonical.Triple) string  { return "map:" + t.String() }

// TryLock attempts to acquire the triple's lock with the given TTL. Returns
// (true, nil) if acquired, (false, nil) if already held by someone else.
func (s *Store) TryLock(ctx context.Context, t canonical.Triple, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, lockKey(t), "1", ttl).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.BackingStoreUnavailable, "lock store unreachable", err)
	}
	return ok, nil
}

// Release deletes both the lock and the mapping for the triple. Idempotent.
func (s *Store) Release(ctx context.Context, t canonical.Triple) error {
	if err := s.redis.Del(ctx, lockKey(t), mapKey(t)).Err(); err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "lock store unreachable", err)
	}
	return nil
}

// PutMapping records the live container id for the triple. Only called
// after a successful container start.
func (s *Store) PutMapping(ctx context.Context, t canonical.Triple, containerID string) error {
	if err := s.redis.Set(ctx, mapKey(t), containerID, 0).Err(); err != nil {
		return apperr.Wrap(apperr.BackingStoreUnavailable, "lock store unreachable", err)
	}
	return nil
}

// GetMapping returns the live container id for the triple, or ("", false, nil)
// if no mapping exists.
func (s *Store) GetMapping(ctx context.Context, t canonical.Triple) (string, bool, error) {
	val, err := s.redis.Get(ctx, mapKey(t)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.BackingStoreUnavailable, "lock store unreachable", err)
	}
	return val, true, nil
}
