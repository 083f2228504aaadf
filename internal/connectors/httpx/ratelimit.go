package httpx

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration for a provider.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultRateLimits are conservative per-provider defaults, well below the
// platforms' published limits.
var DefaultRateLimits = map[string]RateLimitConfig{
	"youtube":       {RequestsPerSecond: 5, BurstSize: 10},
	"linkedin":      {RequestsPerSecond: 2, BurstSize: 5},
	"linkedin-page": {RequestsPerSecond: 2, BurstSize: 5},
	"discord":       {RequestsPerSecond: 5, BurstSize: 5}, // 50 req/s global bot limit
	"github":        {RequestsPerSecond: 1.2, BurstSize: 1},
	"mastodon":      {RequestsPerSecond: 1, BurstSize: 5}, // 300 per 5 minutes
	"devto":         {RequestsPerSecond: 1, BurstSize: 3},
}

var defaultRateLimit = RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10}

// RateLimiter is a token bucket with a backoff window set by 429 responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

var (
	limitersMu sync.Mutex
	limiters   = map[string]*RateLimiter{}
)

// Limiter returns the process-wide limiter of a provider. Provider
// instances are short lived, so the bucket is kept here.
func Limiter(provider string) *RateLimiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	if l, ok := limiters[provider]; ok {
		return l
	}
	cfg, ok := DefaultRateLimits[provider]
	if !ok {
		cfg = defaultRateLimit
	}
	l := NewRateLimiter(cfg)
	limiters[provider] = l
	return l
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(retryAt)):
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError sets a backoff period after a 429 response.
func (r *RateLimiter) RecordRateLimitError(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if retryAfter <= 0 {
		retryAfter = 60 * time.Second
	}
	r.retryAt = time.Now().Add(retryAfter)
}

// Allow reports whether a request can be made immediately.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}
