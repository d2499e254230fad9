package laptimes

import (
	"context"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements the Token Bucket algorithm to control request
// rate against the lap-time board. The board is an unofficial data
// source; polls from every tenant share one bucket.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	minInterval time.Duration
	lastRequest time.Time
	waitTimeout time.Duration
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst.
	BurstSize int

	// MinInterval is the minimum time between requests (even with tokens available).
	MinInterval time.Duration

	// WaitTimeout is the maximum time to wait for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns conservative defaults. A poll touches
// one track per tenant, so even large installations stay well below
// these limits.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		MinInterval:       200 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
	}
}

// NewRateLimiter creates a new RateLimiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  now,
		minInterval: config.MinInterval,
		lastRequest: now.Add(-config.MinInterval),
		waitTimeout: config.WaitTimeout,
	}
}

// Allow blocks until a request may proceed, the wait timeout elapses, or
// the context is cancelled.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		waitTime, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		if time.Now().Add(waitTime).After(deadline) {
			return ErrRateLimited
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// tryAcquire attempts to acquire a token without blocking. On failure
// the returned duration says how long to wait before retrying.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillTokens()

	if since := time.Since(rl.lastRequest); since < rl.minInterval {
		return rl.minInterval - since, false
	}

	if rl.tokens < 1.0 {
		needed := 1.0 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	rl.lastRequest = time.Now()
	return 0, true
}

func (rl *RateLimiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}
