// Package joincode allocates the short human-typable codes participants use
// to find a session. Codes live in the shared cache so uniqueness holds
// across process instances.
package joincode

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"time"

	"trivia-live-service/internal/domain"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength = 6

	defaultMaxAttempts = 10
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidFormat reports whether code is a well-formed 6-character join code.
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}

// Cache is the slice of the shared cache the allocator needs. Reservation
// must be a single atomic set-if-not-exists; a separate existence check
// followed by a set is racy and deliberately not part of this interface.
type Cache interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Allocator generates and reserves join codes in the shared cache.
type Allocator struct {
	cache       Cache
	ttl         time.Duration
	maxAttempts int
}

// NewAllocator creates an allocator whose reservations expire after ttl.
func NewAllocator(cache Cache, ttl time.Duration) *Allocator {
	return &Allocator{cache: cache, ttl: ttl, maxAttempts: defaultMaxAttempts}
}

// Allocate reserves a fresh code mapped to sessionID. It retries on
// collisions up to a bounded attempt count and fails with
// domain.ErrAllocationExhausted rather than ever returning a colliding code.
// Cache failures are hard failures here: guessing would risk a collision.
func (a *Allocator) Allocate(ctx context.Context, sessionID string) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		reserved, err := a.cache.SetNX(ctx, Key(code), sessionID, a.ttl)
		if err != nil {
			return "", fmt.Errorf("reserve join code: %w", err)
		}
		if reserved {
			return code, nil
		}
	}
	return "", domain.ErrAllocationExhausted
}

// Resolve looks up the session bound to code in the cache.
func (a *Allocator) Resolve(ctx context.Context, code string) (string, bool, error) {
	return a.cache.Get(ctx, Key(code))
}

// Remember repopulates the code mapping after a durable-store fallback, so a
// code keeps resolving cheaply after its cache entry expired.
func (a *Allocator) Remember(ctx context.Context, code, sessionID string) error {
	return a.cache.Set(ctx, Key(code), sessionID, a.ttl)
}

// Key returns the cache key for a join-code mapping.
func Key(code string) string {
	return "joincode:" + code
}

func randomCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
