package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	perrors "github.com/parleylabs/parley/pkg/errors"
)

// checkAndIncrScript atomically checks the counter against the limit and
// increments it only when below. Returns {allowed, current_count}.
var checkAndIncrScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
  return {0, current}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return {1, current}
`)

// RedisLimiter provides a Redis-backed implementation of the Limiter
// interface. Counter keys carry a window TTL so stale days are reclaimed
// automatically.
type RedisLimiter struct {
	client    *redis.Client
	prefix    string
	windowTTL time.Duration
}

// RedisLimiterOption configures a RedisLimiter.
type RedisLimiterOption func(*RedisLimiter)

// WithWindowTTL sets how long a day's counter key is retained.
// Default is 48 hours.
func WithWindowTTL(ttl time.Duration) RedisLimiterOption {
	return func(l *RedisLimiter) {
		if ttl > 0 {
			l.windowTTL = ttl
		}
	}
}

// WithPrefix sets the key prefix for Redis keys. Default is "parley".
func WithPrefix(prefix string) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// NewRedisLimiter creates a Redis-backed daily rate limiter.
func NewRedisLimiter(client *redis.Client, opts ...RedisLimiterOption) *RedisLimiter {
	l := &RedisLimiter{
		client:    client,
		prefix:    "parley",
		windowTTL: defaultWindowTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndIncrement implements Limiter using a single atomic Lua call.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, t time.Time, limit int64) (Result, error) {
	res := Result{Limit: limit, ResetsAt: NextReset(t)}

	raw, err := checkAndIncrScript.Run(ctx, l.client,
		[]string{l.counterKey(t)}, limit, int64(l.windowTTL.Seconds())).Result()
	if err != nil {
		return res, perrors.New("ratelimit", "CheckAndIncrement", err).
			WithDetails(map[string]any{"day": DayKey(t)})
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2 {
		return res, fmt.Errorf("unexpected rate limit script result: %v", raw)
	}

	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)

	res.Allowed = allowed == 1
	res.CurrentCount = count
	return res, nil
}

// counterKey generates the Redis key for a day's counter.
func (l *RedisLimiter) counterKey(t time.Time) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.prefix, DayKey(t))
}
