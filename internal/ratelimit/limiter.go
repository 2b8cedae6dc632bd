// Package ratelimit throttles actions per client identity with a fixed
// window counter kept in the shared cache, so limits hold across process
// instances. Cache failures are hard failures: failing open would allow
// unlimited joins.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultLimit allows this many checks per window per (action, client).
	DefaultLimit = 5
	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second
)

// Cache is the slice of the shared cache the limiter needs. Incr must be
// atomic.
type Cache interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, key string) error
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

// Limiter is a fixed-window counter per (action, clientID).
type Limiter struct {
	cache  Cache
	limit  int64
	window time.Duration
}

// New creates a limiter. Non-positive limit or window fall back to defaults.
func New(cache Cache, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{cache: cache, limit: int64(limit), window: window}
}

// Check counts one attempt and reports whether it is allowed. The window
// expiry is set only on the first increment; once the counter exceeds the
// limit the decision carries the remaining window, clamped to [1, window].
func (l *Limiter) Check(ctx context.Context, action, clientID string) (Decision, error) {
	key := Key(action, clientID)

	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment: %w", err)
	}
	if count == 1 {
		if err := l.cache.Expire(ctx, key, l.window); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if count <= l.limit {
		return Decision{Allowed: true}, nil
	}

	ttl, err := l.cache.TTL(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	retry := int(math.Ceil(ttl.Seconds()))
	maxRetry := int(l.window.Seconds())
	if retry < 1 {
		retry = 1
	}
	if retry > maxRetry {
		retry = maxRetry
	}
	return Decision{Allowed: false, RetryAfterSeconds: retry}, nil
}

// Reset clears the window for (action, clientID). Administrative/test use.
func (l *Limiter) Reset(ctx context.Context, action, clientID string) error {
	return l.cache.Del(ctx, Key(action, clientID))
}

// Key returns the cache key for a rate-limit window.
func Key(action, clientID string) string {
	return "ratelimit:" + action + ":" + clientID
}
