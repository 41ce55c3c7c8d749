package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const refKeyPrefix = "vendor_ref:"

// RedisCache is the read-through cache in front of vendor lookups. Vendor links
// are immutable once created, so entries only expire by TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

func (c *RedisCache) Get(ctx context.Context, raw string) (string, bool, error) {
	if c.Client == nil {
		return "", false, fmt.Errorf("redis client not initialized")
	}
	id, err := c.Client.Get(ctx, refKeyPrefix+raw).Result()
	if err == redis.Nil {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to get vendor ref from Redis: %w", err)
	}
	return id, true, nil
}

func (c *RedisCache) Set(ctx context.Context, raw, canonicalID string) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := c.Client.Set(ctx, refKeyPrefix+raw, canonicalID, c.TTL).Err(); err != nil {
		return fmt.Errorf("failed to store vendor ref in Redis: %w", err)
	}
	return nil
}
