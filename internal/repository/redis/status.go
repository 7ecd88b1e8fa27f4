package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

var _ repository.StatusStore = (*redisStatus)(nil)

const (
	statusKeyPrefix = "betascrubber:status:"

	// statusTTL drops records nobody ever polled.
	statusTTL = 24 * time.Hour
)

// compareAndDelete removes KEYS[1] only if it still holds ARGV[1].
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisStatus struct {
	client *goredis.Client
}

// NewRedisStatusStore creates a Redis-backed status store, shared by every
// server and worker process pointing at the same Redis.
func NewRedisStatusStore(client *goredis.Client) repository.StatusStore {
	return &redisStatus{client: client}
}

func (r *redisStatus) Save(ctx context.Context, id string, status domain.Status) error {
	if err := r.client.Set(ctx, statusKeyPrefix+id, status.String(), statusTTL).Err(); err != nil {
		return fmt.Errorf("redis: save status: %w", err)
	}
	return nil
}

func (r *redisStatus) Load(ctx context.Context, id string) (domain.Status, error) {
	raw, err := r.client.Get(ctx, statusKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Status{}, domain.ErrStatusNotFound
		}
		return domain.Status{}, fmt.Errorf("redis: load status: %w", err)
	}
	return domain.ParseStatus(raw), nil
}

func (r *redisStatus) CompareAndDelete(ctx context.Context, id string, expected domain.Status) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.client, []string{statusKeyPrefix + id}, expected.String()).Int()
	if err != nil {
		return false, fmt.Errorf("redis: delete status: %w", err)
	}
	return n == 1, nil
}
