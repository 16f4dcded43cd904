package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps a bucket alive one window past its end so late readers still see it
const counterTTL = 2 * Window

// incrScript increments a bucket and sets its expiry on first use, atomically
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter is a fixed-window counter shared by all gateway instances
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on an existing client
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit",
		now:    time.Now,
	}
}

// Admit records an attempt against provider's current window
func (l *RedisLimiter) Admit(ctx context.Context, provider string, rpm int) (bool, error) {
	d, err := l.AllowWithDetails(ctx, provider, rpm)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// AllowWithDetails records an attempt and returns the full decision.
// The increment that overflows the ceiling is kept, so a refused window
// stays refused until it rolls over.
func (l *RedisLimiter) AllowWithDetails(ctx context.Context, provider string, limit int) (Decision, error) {
	if limit <= 0 {
		return unlimited, nil
	}

	now := l.now()
	res, err := incrScript.Run(ctx, l.client, []string{l.key(provider, now)}, int(counterTTL.Seconds())).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment failed: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return Decision{}, errors.New("rate limit redis: unexpected response type")
	}
	return decide(count, limit, now), nil
}

// Usage returns the attempts recorded in the current window
func (l *RedisLimiter) Usage(ctx context.Context, provider string) (int64, error) {
	count, err := l.client.Get(ctx, l.key(provider, l.now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count, nil
}

// Reset clears the current window for provider
func (l *RedisLimiter) Reset(ctx context.Context, provider string) error {
	if err := l.client.Del(ctx, l.key(provider, l.now())).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}

func (l *RedisLimiter) key(provider string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, provider, windowStart(now).Unix())
}
