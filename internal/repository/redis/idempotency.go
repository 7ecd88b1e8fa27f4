package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sanderdlm/betascrubber/internal/repository"
)

var _ repository.LockStore = (*redisLocks)(nil)

const (
	lockKeyPrefix  = "betascrubber:lock:"
	DefaultLockTTL = 20 * time.Minute
)

type redisLocks struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisLockStore creates a Redis-backed per-job lock store. The TTL
// bounds how long a crashed worker can block resubmission of a job.
func NewRedisLockStore(client *goredis.Client, ttl time.Duration) repository.LockStore {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &redisLocks{client: client, ttl: ttl}
}

// AcquireLock uses Redis SETNX to atomically acquire a processing lock.
func (r *redisLocks) AcquireLock(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+id, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock deletes the lock so the job can be submitted again.
func (r *redisLocks) ReleaseLock(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, lockKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis: release lock: %w", err)
	}
	return nil
}
