package svcpipe

import (
	"context"
	"errors"
)

// ErrorContextMiddleware stamps failures with the service name, the
// operation and a timestamp, then logs them. It never retries.
type ErrorContextMiddleware struct {
	Service string
	Logger  Logger
	Clock   Clock
	Metrics *MetricsCollector
}

// Handle implements Middleware.
func (m *ErrorContextMiddleware) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	resp, err := next(ctx, req)
	if err == nil {
		return resp, nil
	}

	var se *ServiceError
	if !errors.As(err, &se) {
		se = AsServiceError(err)
		err = se
	}
	se.annotate(m.Service, req.Operation(), clockOrSystem(m.Clock).Now())

	loggerOrDiscard(m.Logger).Error("service error",
		"service", se.Service,
		"operation", se.Operation,
		"code", se.Code,
		"status", se.Status,
		"error", se.Message,
	)
	m.Metrics.RecordError(se.Service, se.Code)
	return nil, err
}
