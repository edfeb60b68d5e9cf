package svcpipe

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// RateLimiter is a token-bucket Middleware. A request finding the bucket
// empty fails with status 429 and code RATE_LIMITED, which the Retry
// middleware treats as transient.
type RateLimiter struct {
	name       string
	maxTokens  int64
	tokens     int64
	refillRate time.Duration
	lastRefill int64
	clock      Clock
	metrics    *MetricsCollector
}

// NewRateLimiter creates a bucket of maxTokens that regains one token every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	clock := SystemClock()
	return &RateLimiter{
		name:       "default",
		maxTokens:  int64(maxTokens),
		tokens:     int64(maxTokens),
		refillRate: refillRate,
		lastRefill: clock.Now().UnixNano(),
		clock:      clock,
	}
}

// Instrument names the limiter and reports its tokens to mc. It returns rl.
func (rl *RateLimiter) Instrument(name string, mc *MetricsCollector) *RateLimiter {
	if name != "" {
		rl.name = name
	}
	rl.metrics = mc
	return rl
}

// Handle implements Middleware.
func (rl *RateLimiter) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	allowed := rl.Allow()
	rl.metrics.RecordRateLimiterTokens(rl.name, rl.Tokens())
	if !allowed {
		return nil, &ServiceError{
			Message:   "rate limit exceeded",
			Status:    http.StatusTooManyRequests,
			Code:      CodeRateLimited,
			Timestamp: rl.clock.Now(),
		}
	}
	return next(ctx, req)
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() int64 {
	return atomic.LoadInt64(&rl.tokens)
}

// Allow checks if a request is allowed by the rate limiter
func (rl *RateLimiter) Allow() bool {
	rl.refillTokens()
	return rl.consumeToken()
}

// refillTokens refills tokens based on elapsed time since last refill
func (rl *RateLimiter) refillTokens() {
	now := rl.clock.Now().UnixNano()

	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		lastRefill := atomic.LoadInt64(&rl.lastRefill)

		elapsed := now - lastRefill
		tokensToAdd := int64(0)
		if rl.refillRate > 0 {
			tokensToAdd = elapsed / int64(rl.refillRate)
		}

		if tokensToAdd <= 0 {
			break
		}

		newTokens := currentTokens + tokensToAdd
		if newTokens > rl.maxTokens {
			newTokens = rl.maxTokens
		}

		newLastRefill := lastRefill + (tokensToAdd * int64(rl.refillRate))
		if !atomic.CompareAndSwapInt64(&rl.lastRefill, lastRefill, newLastRefill) {
			continue
		}

		atomic.StoreInt64(&rl.tokens, newTokens)
		break
	}
}

// consumeToken attempts to consume one token
func (rl *RateLimiter) consumeToken() bool {
	for {
		currentTokens := atomic.LoadInt64(&rl.tokens)
		if currentTokens <= 0 {
			return false
		}

		if atomic.CompareAndSwapInt64(&rl.tokens, currentTokens, currentTokens-1) {
			return true
		}
	}
}
