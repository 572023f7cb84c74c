// ==============================================================================
// REDIS COUNTERS - pkg/cache/redis.go
// ==============================================================================
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementWindow bumps a counter and gives it a TTL whenever it has none,
// in one atomic step. A key can never be left without an expiry.
var incrementWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCache backs shared counters such as the HTTP rate limiter.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects and pings; addr is host:port without a scheme.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// IncrementWindow increments key and returns the new count. The key expires
// window after the first increment of the current window.
func (c *RedisCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrementWindow.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
