package svcpipe

import (
	"context"
	"time"

	"github.com/ambiyansyah-risyal/svcpipe/internal/backoff"
)

// RetryMiddleware re-invokes downstream on transient failures, up to the
// request's retry budget, sleeping Backoff.Delay(n) after failed attempt n.
type RetryMiddleware struct {
	Service string
	Backoff Backoff
	Logger  Logger
	Clock   Clock
	Metrics *MetricsCollector
}

// Handle implements Middleware.
func (m *RetryMiddleware) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	logger := loggerOrDiscard(m.Logger)
	clock := clockOrSystem(m.Clock)
	strategy := m.Backoff
	if strategy == nil {
		strategy = backoff.Default()
	}

	budget := req.retries()
	for attempt := 1; ; attempt++ {
		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt > budget || !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		delay := strategy.Delay(attempt)
		logger.Warn("retrying request",
			"service", m.Service,
			"operation", req.Operation(),
			"attempt", attempt,
			"max_attempts", budget+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
		m.Metrics.RecordRetry(m.Service, req.method(), attempt)

		if serr := clock.Sleep(ctx, delay); serr != nil {
			return nil, &ServiceError{
				Message:   "request aborted during retry backoff",
				Code:      CodeAborted,
				Cause:     serr,
				Timestamp: clock.Now(),
			}
		}
	}
}

// ExponentialBackoff doubles the delay from base on every failed attempt,
// capped at max when max is positive.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return backoff.Exponential{Base: base, Max: max}
}

// JitteredBackoff is ExponentialBackoff plus up to jitter*delay of random spread.
func JitteredBackoff(base, max time.Duration, jitter float64) Backoff {
	return backoff.ExponentialJitter{Base: base, Max: max, Jitter: jitter}
}
