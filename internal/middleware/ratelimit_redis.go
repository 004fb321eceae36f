package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	rateLimitKeyPrefix = "ledger:ratelimit:"
	rateLimitWindow    = time.Minute
)

// slidingWindowScript trims the window, then admits and records the request
// when the count is below the limit. Scores are unix milliseconds; ARGV[4]
// is a unique member so two requests in the same millisecond both count.
// Returns {allowed, remaining, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = now + window
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window + 10000)

return {1, limit - count - 1, now + window}
`)

// RedisRateLimiter shares counters across server instances. Redis failures
// fail open so an outage does not block paid traffic.
type RedisRateLimiter struct {
	client redis.Scripter
}

func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (rl *RedisRateLimiter) Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64) {
	now := time.Now()
	failOpen := func() (bool, int, int64) {
		return true, limit - 1, now.Add(rateLimitWindow).Unix()
	}

	result, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rateLimitKeyPrefix + key},
		now.UnixMilli(), rateLimitWindow.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, allowing request")
		return failOpen()
	}
	if len(result) != 3 {
		log.Warn().Str("key", key).Int("fields", len(result)).Msg("unexpected redis rate limit result")
		return failOpen()
	}

	return result[0] == 1, int(result[1]), time.UnixMilli(result[2]).Unix()
}
