package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	rdb *redis.Client
}

// NewRedisCache constructs a cache store shared across processes.
func NewRedisCache(rdb *redis.Client) *redisCache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read: %w", err)
	}
	return data, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, retention time.Duration) error {
	if err := c.rdb.Set(ctx, cacheKey(key), value, retention).Err(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "gw:" + key
}
