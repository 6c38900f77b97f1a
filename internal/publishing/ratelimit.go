package publishing

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "chimera:ratelimit:publish:"

// RedisLimiter is a fixed-window counter per agent and platform. Windows are
// aligned to multiples of the window length since the Unix epoch so every
// replica agrees on them.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter creates a limiter allowing limit requests per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Limit returns the number of requests allowed per window.
func (l *RedisLimiter) Limit() int { return l.limit }

// Window returns the window length.
func (l *RedisLimiter) Window() time.Duration { return l.window }

// Allow counts one request. When the window is exhausted it reports false
// and the time left until the window resets.
func (l *RedisLimiter) Allow(ctx context.Context, agentID, platform string) (bool, time.Duration, error) {
	now := l.now()
	start := windowStart(now, l.window)
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitKeyPrefix, agentID, platform, start.Unix())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if incr.Val() > int64(l.limit) {
		return false, start.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}

// windowStart returns the start of the epoch-aligned window containing now.
func windowStart(now time.Time, window time.Duration) time.Time {
	ns := now.UnixNano()
	return time.Unix(0, ns-ns%int64(window)).In(now.Location())
}
