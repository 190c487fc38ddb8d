package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter throttles repeated attempts per "operation:identifier" key
// (e.g. "login:ip:1.2.3.4"). Implementations are injectable so tests and
// single-instance deployments can use process memory while horizontally
// scaled ones share state through Redis.
type Limiter interface {
	// Allow records one attempt and reports whether it is within limit
	// attempts per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Reset clears the counter for key (called after a successful login).
	Reset(ctx context.Context, key string) error
}

/* ============================ Memory limiter ============================ */

// MemoryLimiter is a sliding-window limiter over an in-process map. State
// is lost on restart; that is an accepted limitation of the design, not a
// bug.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
	return nil
}

/* ============================ Redis limiter ============================= */

// RedisLimiter counts attempts in a fixed window per key. The window starts
// at the first attempt and expires with the key.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
