package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter keys outlive the day they track so Status can be read after
// midnight rollover debugging; two days is plenty.
const redisCounterTTL = 48 * time.Hour

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore constructs a Redis-backed counter store shared across
// processes.
func NewRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Reserve(ctx context.Context, day string, cost, limit int) (int, bool, error) {
	key := counterKey(day)
	used, err := s.rdb.IncrBy(ctx, key, int64(cost)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("quota incr: %w", err)
	}
	// First writer of the day sets the expiry.
	_ = s.rdb.ExpireNX(ctx, key, redisCounterTTL).Err()

	if used > int64(limit) {
		// Over budget: roll the increment back so the counter stays exact.
		rolled, err := s.rdb.DecrBy(ctx, key, int64(cost)).Result()
		if err != nil {
			return int(used), false, fmt.Errorf("quota rollback: %w", err)
		}
		return int(rolled), false, nil
	}
	return int(used), true, nil
}

func (s *redisStore) Release(ctx context.Context, day string, cost int) error {
	if err := s.rdb.DecrBy(ctx, counterKey(day), int64(cost)).Err(); err != nil {
		return fmt.Errorf("quota release: %w", err)
	}
	return nil
}

func (s *redisStore) Used(ctx context.Context, day string) (int, error) {
	used, err := s.rdb.Get(ctx, counterKey(day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota read: %w", err)
	}
	return used, nil
}

func counterKey(day string) string {
	return "quota:" + day
}
