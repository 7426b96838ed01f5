package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// ErrRateLimitExceeded is returned when no token is available for a key.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// TokenBucket is a per-key token bucket limiter guarding provider calls.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int
	refillRate time.Duration // interval per token
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

var _ harnessports.RateLimiter = (*TokenBucket)(nil)

func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
	}
}

// Acquire takes one token for key, failing fast when the bucket is empty.
// The release callback returns the token early for short-lived operations.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (func(), error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, lastRefill: time.Now()}
		tb.buckets[key] = b
	}

	if tb.refillRate > 0 {
		elapsed := time.Since(b.lastRefill)
		refill := int(elapsed / tb.refillRate)
		if refill > 0 {
			b.tokens = min(b.tokens+refill, tb.capacity)
			b.lastRefill = b.lastRefill.Add(time.Duration(refill) * tb.refillRate)
		}
	}

	if b.tokens <= 0 {
		return nil, ErrRateLimitExceeded
	}
	b.tokens--

	release := func() {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		if b, ok := tb.buckets[key]; ok {
			b.tokens = min(b.tokens+1, tb.capacity)
		}
	}
	return release, nil
}
