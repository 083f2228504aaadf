package github

import (
	"context"
	"sync"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/sercha-connect/internal/connectors/httpx"
)

// QuotaReserve is how many calls of the hourly quota are left untouched
// before requests are held until the quota resets.
const QuotaReserve = 100

// RateLimiter paces calls through the provider token bucket and holds them
// back when the quota GitHub reports runs low.
type RateLimiter struct {
	bucket  *httpx.RateLimiter
	reserve int

	mu    sync.Mutex
	quota gh.Rate
}

// NewRateLimiter returns a limiter on the process-wide github bucket.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{bucket: httpx.Limiter("github"), reserve: QuotaReserve}
}

// NewRateLimiterWithRate returns a limiter with its own bucket.
func NewRateLimiterWithRate(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		bucket:  httpx.NewRateLimiter(httpx.RateLimitConfig{RequestsPerSecond: perSecond, BurstSize: burst}),
		reserve: QuotaReserve,
	}
}

var sharedLimiter = NewRateLimiter()

// Wait blocks until the next call may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.bucket.Wait(ctx); err != nil {
		return err
	}

	q := r.Quota()
	if q.Limit == 0 || q.Remaining >= r.reserve {
		return nil
	}
	reset := q.Reset.Time
	if !time.Now().Before(reset) {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Until(reset)):
		return nil
	}
}

// Observe records the quota parsed by go-github from a response.
// Responses without rate headers are ignored.
func (r *RateLimiter) Observe(rate gh.Rate) {
	if rate.Limit == 0 {
		return
	}
	r.mu.Lock()
	r.quota = rate
	r.mu.Unlock()
}

// Backoff pauses the bucket after a secondary rate limit.
func (r *RateLimiter) Backoff(retryAfter time.Duration) {
	r.bucket.RecordRateLimitError(retryAfter)
}

// Quota returns the last observed quota.
func (r *RateLimiter) Quota() gh.Rate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quota
}
