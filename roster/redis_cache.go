package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisCache keeps the listing in Redis under one key. Give every relay
// instance its own key: the listing describes one process's registry.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisCache creates a Redis-backed Cache.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache := roster.NewRedisCache(client, "chatrelay:node-1:roster", time.Second)
//
// Parameters:
//   - client: Connected Redis client; the caller owns and closes it
//   - key: Redis key holding the JSON-encoded listing
//   - ttl: Expiry of the key; values <= 0 use DefaultTTL
//
// Returns:
//   - A new RedisCache
func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisCache{client: client, key: key, ttl: ttl}
}

// Names implements Cache.
func (c *RedisCache) Names(ctx context.Context, fetch FetchFunc) ([]string, error) {
	names, err := c.get(ctx)
	if err == nil {
		return names, nil
	}

	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	val, err, _ := c.group.Do(c.key, func() (any, error) {
		names, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch roster: %w", err)
		}

		data, err := json.Marshal(names)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal roster: %w", err)
		}

		if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to cache roster: %w", err)
		}

		return names, nil
	})
	if err != nil {
		return nil, err
	}

	return append([]string(nil), val.([]string)...), nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to delete roster: %w", err)
	}

	return nil
}

func (c *RedisCache) get(ctx context.Context) ([]string, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}

		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(val), &names); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster: %w", err)
	}

	return names, nil
}
