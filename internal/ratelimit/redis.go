package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/springcloudnative/edge-service/internal/config"
)

// tokenBucketScript refills and decrements a bucket in a single server-side
// step, so two gateway instances racing on the same key can never overdraw
// it. Keys: {key}.tokens, {key}.timestamp. Args: rate, capacity, now
// (seconds), requested. Returns: [allowed (0/1), tokens_left].
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local timestamp_key = KEYS[2]

local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local fill_time = capacity / rate
local ttl = math.floor(fill_time * 2)
if ttl < 1 then
    ttl = 1
end

local last_tokens = tonumber(redis.call('GET', tokens_key))
if last_tokens == nil then
    last_tokens = capacity
end

local last_refreshed = tonumber(redis.call('GET', timestamp_key))
if last_refreshed == nil then
    last_refreshed = now
end

local delta = math.max(0, now - last_refreshed)
local filled_tokens = math.min(capacity, last_tokens + (delta * rate))

local allowed = 0
local new_tokens = filled_tokens
if filled_tokens >= requested then
    allowed = 1
    new_tokens = filled_tokens - requested
end

redis.call('SETEX', tokens_key, ttl, new_tokens)
redis.call('SETEX', timestamp_key, ttl, now)

return {allowed, new_tokens}
`)

// RedisLimiter is the distributed token bucket. Bucket state lives in the
// shared store so every gateway instance draws from the same bucket.
type RedisLimiter struct {
	client    redis.UniversalClient
	prefix    string
	rate      int
	burst     int
	requested int
	now       func() int64 // unix seconds, injectable for tests
}

// NewRedisLimiter creates a Redis-backed token bucket limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg config.RateLimitConfig) *RedisLimiter {
	requested := cfg.RequestedTokens
	if requested <= 0 {
		requested = 1
	}
	return &RedisLimiter{
		client:    client,
		prefix:    "edge:ratelimit:",
		rate:      cfg.ReplenishRate,
		burst:     cfg.BurstCapacity,
		requested: requested,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// Allow checks admission for one request against the bucket for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	keys := []string{
		l.prefix + key + ".tokens",
		l.prefix + key + ".timestamp",
	}

	res, err := tokenBucketScript.Run(ctx, l.client, keys,
		l.rate, l.burst, l.now(), l.requested,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
	}, nil
}

// Burst returns the bucket capacity.
func (l *RedisLimiter) Burst() int {
	return l.burst
}
