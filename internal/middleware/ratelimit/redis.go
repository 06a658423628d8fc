package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes atomically so several API replicas share one budget.
// KEYS[1] bucket key; ARGV rate (tokens/s), capacity, now (seconds, fractional), ttl (s).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, ttl)
return allowed
`)

// RedisStore is a Store shared by every process pointing at the same Redis.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	rate     float64
	capacity int
	ttl      int
	now      func() time.Time
}

// NewRedisStore uses client for the buckets; keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, config Config) *RedisStore {
	config = config.normalized()
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		rate:     float64(config.RequestsPerMinute) / 60.0,
		capacity: config.Burst,
		ttl:      int(config.CleanupInterval / time.Second),
		now:      time.Now,
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(s.now().UnixMicro()) / 1e6
	allowed, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key}, s.rate, s.capacity, now, s.ttl).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return allowed == 1, nil
}
