// Package ratelimit provides fixed-window limiters keyed by caller.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed.
// When it may not, retryAfter estimates how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisLimiter counts attempts in a shared redis key that expires with the
// window, so the limit holds across every instance of the service.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit attempts per key per window.
func NewRedisLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *RedisLimiter {
	limit, window = normalize(limit, window)
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + ":" + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	if count <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		// Counter lost its expiry; restart the window.
		_ = l.client.PExpire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}

// MemoryLimiter is a per-process token bucket limiter for single instance
// deployments and local development.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// Fallbacks for non-positive limiter settings.
const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return limit, window
}

// NewMemoryLimiter allows a burst of limit attempts refilled evenly over window.
// Non-positive settings fall back to DefaultLimit and DefaultWindow.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	limit, window = normalize(limit, window)
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	r := lim.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}
