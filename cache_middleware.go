package svcpipe

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// CacheMiddleware serves GET requests with UseCache set from the Store and
// fills it from successful downstream responses. Concurrent misses on one
// key share a single downstream call. Every other request bypasses it.
type CacheMiddleware struct {
	Service string
	Store   *CacheStore
	Logger  Logger
	Clock   Clock
	Metrics *MetricsCollector

	group singleflight.Group
}

// Handle implements Middleware.
func (m *CacheMiddleware) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	if m.Store == nil || !req.UseCache || req.method() != MethodGet {
		return next(ctx, req)
	}

	logger := loggerOrDiscard(m.Logger)
	key := CacheKeyFor(req)

	if cached, ok := m.Store.Get(key); ok {
		m.Metrics.RecordCacheHit(m.Service)
		logger.Debug("cache hit", "service", m.Service, "key", key)
		return cached.clone(), nil
	}
	m.Metrics.RecordCacheMiss(m.Service)

	ch := m.group.DoChan(key, func() (any, error) {
		// A flight that finished between the lookup above and here has already stored the value.
		if cached, ok := m.Store.Get(key); ok {
			return cached, nil
		}
		return m.fill(ctx, req, key, next)
	})

	select {
	case <-ctx.Done():
		return nil, &ServiceError{
			Message:   "request aborted",
			Code:      CodeAborted,
			Cause:     ctx.Err(),
			Timestamp: clockOrSystem(m.Clock).Now(),
		}
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(*Response).clone(), nil
		}
		if !res.Shared {
			return nil, res.Err
		}
		// Another caller's cancellation must not fail this one.
		if errors.Is(res.Err, ErrAborted) && ctx.Err() == nil {
			resp, err := m.fill(ctx, req, key, next)
			if err != nil {
				return nil, err
			}
			return resp.clone(), nil
		}
		return nil, detach(res.Err)
	}
}

func (m *CacheMiddleware) fill(ctx context.Context, req *Request, key string, next Handler) (*Response, error) {
	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Success {
		ttl := req.cacheTTL()
		m.Store.Set(key, resp, ttl)
		m.Metrics.RecordCacheSize(m.Service, m.Store.Len())
		loggerOrDiscard(m.Logger).Debug("cache store", "service", m.Service, "key", key, "ttl", ttl)
	}
	return resp, nil
}
