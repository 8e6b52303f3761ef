package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript atomically increments a window counter and stamps the window
// TTL on first hit, so the count and its expiry can never diverge.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore keeps window counters in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed window counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr increments the window counter for key, creating it with the window
// TTL on first hit. Key expiry gives the fixed-window reset: once the TTL
// elapses the counter is gone and the next hit starts a fresh window.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	count, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	remaining := time.Duration(ttlMs) * time.Millisecond
	if remaining < 0 {
		remaining = window
	}
	return count, remaining, nil
}
