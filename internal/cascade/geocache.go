package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGeocodeCache stores validator verdicts as "1"/"0" strings.
type RedisGeocodeCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisGeocodeCache caches geocode verdicts in Redis for ttl.
func NewRedisGeocodeCache(client redis.Cmdable, ttl time.Duration) *RedisGeocodeCache {
	return &RedisGeocodeCache{client: client, prefix: "geo:valid:", ttl: ttl}
}

// Get returns the cached verdict and whether one was found.
func (c *RedisGeocodeCache) Get(ctx context.Context, name string) (bool, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+name).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *RedisGeocodeCache) Set(ctx context.Context, name string, valid bool) error {
	val := "0"
	if valid {
		val = "1"
	}
	return c.client.Set(ctx, c.prefix+name, val, c.ttl).Err()
}
