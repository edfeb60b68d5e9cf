package svcpipe

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id the Logging middleware assigns to a call.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware records the start, outcome and elapsed time of every
// call. It sits outermost so the elapsed time covers retries and refreshes.
type LoggingMiddleware struct {
	Service      string
	Logger       Logger
	Clock        Clock
	Metrics      *MetricsCollector
	NewRequestID func() string
}

// Handle implements Middleware.
func (m *LoggingMiddleware) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	logger := loggerOrDiscard(m.Logger)
	clock := clockOrSystem(m.Clock)
	method := req.method()

	requestID := req.Header(RequestIDHeader)
	if requestID == "" {
		requestID = m.requestID()
		req.SetHeader(RequestIDHeader, requestID)
	}

	start := clock.Now()
	logger.Info("request started",
		"request_id", requestID, "service", m.Service, "method", method, "endpoint", req.Endpoint)
	m.Metrics.RecordRequestStart(m.Service, method)

	resp, err := next(ctx, req)

	elapsed := clock.Now().Sub(start)
	m.Metrics.RecordRequestEnd(m.Service, method)

	if err != nil {
		m.Metrics.RecordRequest(m.Service, method, StatusCode(err), elapsed)
		logger.Error("request failed",
			"request_id", requestID, "service", m.Service, "method", method, "endpoint", req.Endpoint,
			"error", err.Error(), "elapsed_ms", elapsed.Milliseconds())
		return nil, err
	}

	status := 0
	if resp != nil {
		status = resp.Status
	}
	m.Metrics.RecordRequest(m.Service, method, status, elapsed)
	logger.Info("request succeeded",
		"request_id", requestID, "service", m.Service, "method", method, "endpoint", req.Endpoint,
		"status", status, "elapsed_ms", elapsed.Milliseconds())
	return resp, nil
}

func (m *LoggingMiddleware) requestID() string {
	if m.NewRequestID != nil {
		return m.NewRequestID()
	}
	return uuid.NewString()
}

var discardLogger Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func loggerOrDiscard(l Logger) Logger {
	if l == nil {
		return discardLogger
	}
	return l
}

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock()
	}
	return c
}
