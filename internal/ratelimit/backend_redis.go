package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript records the request in a sorted set of timestamps and
// counts the window in one atomic round trip. Scores and arguments are in
// microseconds.
//
// Returns {count, oldestScore}. count includes the request just recorded;
// oldestScore is 0 when the set was empty before trimming.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local member = ARGV[3]
local ttl_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, ttl_ms)

local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_score = 0
if oldest[2] then
	oldest_score = tonumber(oldest[2])
end

return {count, oldest_score}
`)

// RedisBackend is the shared counter store used when multiple instances
// serve traffic. Each key holds a rolling log of request timestamps in a
// sorted set; trimming, recording and counting happen in a single Lua
// script execution.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend creates a RedisBackend over the given client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// CheckAndRecord implements Backend.
func (b *RedisBackend) CheckAndRecord(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	now := time.Now()

	raw, err := slidingWindowScript.Run(ctx, b.client,
		[]string{key},
		now.UnixMicro(),
		window.Microseconds(),
		uuid.NewString(),
		window.Milliseconds(),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("sliding window script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("unexpected script reply %T", raw)
	}

	count, ok := values[0].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected count type %T", values[0])
	}
	oldestMicro, ok := values[1].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected oldest type %T", values[1])
	}

	resetAt := now.Add(window)
	if oldestMicro > 0 {
		resetAt = time.UnixMicro(oldestMicro).Add(window)
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   int(count) <= max,
		Count:     int(count),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
