package svcpipe

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambiyansyah-risyal/svcpipe/internal/backoff"
)

// Service is the pipeline composer. It owns an ordered middleware list and
// a response cache, and is the base concrete data services embed. It is
// safe for concurrent use.
type Service struct {
	name                string
	baseURL             string
	httpClient          *http.Client
	logger              Logger
	tokens              TokenStore
	clock               Clock
	metrics             *MetricsCollector
	backoff             Backoff
	defaults            defaults
	requestIDGen        func() string
	refreshBeforeExpiry time.Duration
	maxResponseBody     int64

	cache *CacheStore
	exec  *executor

	mu         sync.RWMutex
	middleware []Middleware

	validationError error
}

// New constructs a Service with the default chain
// Logging -> Authentication -> Error-Context -> Retry -> Cache. Call
// IsValid / ValidationError to check the configuration.
func New(options ...Option) *Service {
	s := &Service{
		name:         "unknown",
		logger:       discardLogger,
		clock:        SystemClock(),
		backoff:      backoff.Default(),
		requestIDGen: uuid.NewString,
		defaults: defaults{
			timeout:  DefaultTimeout,
			retries:  DefaultRetries,
			cacheTTL: DefaultCacheTTL,
		},
	}

	for _, option := range options {
		option(s)
	}

	if s.httpClient == nil {
		s.httpClient = newDefaultHTTPClient()
	}
	s.cache = NewCacheStore(s.clock)
	s.exec = &executor{
		baseURL:    s.baseURL,
		httpClient: s.httpClient,
		clock:      s.clock,
		userAgent:  UserAgent(),
		maxBody:    s.maxResponseBody,
	}
	s.middleware = []Middleware{
		&LoggingMiddleware{
			Service:      s.name,
			Logger:       s.logger,
			Clock:        s.clock,
			Metrics:      s.metrics,
			NewRequestID: s.requestIDGen,
		},
		&AuthMiddleware{
			Service:             s.name,
			Tokens:              s.tokens,
			Logger:              s.logger,
			Clock:               s.clock,
			Metrics:             s.metrics,
			RefreshBeforeExpiry: s.refreshBeforeExpiry,
		},
		&ErrorContextMiddleware{
			Service: s.name,
			Logger:  s.logger,
			Clock:   s.clock,
			Metrics: s.metrics,
		},
		&RetryMiddleware{
			Service: s.name,
			Backoff: s.backoff,
			Logger:  s.logger,
			Clock:   s.clock,
			Metrics: s.metrics,
		},
		&CacheMiddleware{
			Service: s.name,
			Store:   s.cache,
			Logger:  s.logger,
			Clock:   s.clock,
			Metrics: s.metrics,
		},
	}

	if err := s.ValidateConfiguration(); err != nil {
		s.validationError = err
	}

	return s
}

// Name returns the service name stamped on errors and metrics.
func (s *Service) Name() string {
	return s.name
}

// Use appends a middleware after the defaults, just outside the execution
// core. It returns s for chaining.
func (s *Service) Use(m Middleware) *Service {
	if m == nil {
		return s
	}
	s.mu.Lock()
	s.middleware = append(s.middleware, m)
	s.mu.Unlock()
	return s
}

// Request runs req through the middleware chain. ctx cancels the call,
// including any pending retry backoff. A failure is always a *ServiceError.
func (s *Service) Request(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return nil, &ServiceError{
			Message:   "nil request",
			Code:      CodeValidation,
			Service:   s.name,
			Timestamp: s.clock.Now(),
		}
	}
	prepared := req.prepare(s.defaults)
	if !validMethod(prepared.Method) {
		return nil, s.invalidRequest(prepared, "unsupported method "+strconv.Quote(prepared.Method), nil)
	}
	if err := prepared.bufferBody(); err != nil {
		return nil, s.invalidRequest(prepared, "read request body", err)
	}

	s.mu.RLock()
	chain := s.middleware
	s.mu.RUnlock()

	var at func(i int) Handler
	at = func(i int) Handler {
		return func(ctx context.Context, r *Request) (*Response, error) {
			if i == len(chain) {
				return s.exec.execute(ctx, r)
			}
			return chain[i].Handle(ctx, r, at(i+1))
		}
	}

	resp, err := at(0)(ctx, prepared)
	if err != nil {
		se := AsServiceError(err)
		se.annotate(s.name, prepared.Operation(), s.clock.Now())
		return nil, se
	}
	return resp, nil
}

func (s *Service) invalidRequest(req *Request, msg string, cause error) *ServiceError {
	return &ServiceError{
		Message:   msg,
		Code:      CodeValidation,
		Cause:     cause,
		Timestamp: s.clock.Now(),
		Service:   s.name,
		Operation: req.Operation(),
	}
}

// Get issues a GET with optional query parameters.
func (s *Service) Get(ctx context.Context, endpoint string, query map[string]any) (*Response, error) {
	return s.Request(ctx, &Request{Endpoint: endpoint, Method: MethodGet, Query: query})
}

// Post issues a POST with a JSON-encoded body.
func (s *Service) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.Request(ctx, &Request{Endpoint: endpoint, Method: MethodPost, Body: body})
}

// Put issues a PUT with a JSON-encoded body.
func (s *Service) Put(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.Request(ctx, &Request{Endpoint: endpoint, Method: MethodPut, Body: body})
}

// Patch issues a PATCH with a JSON-encoded body.
func (s *Service) Patch(ctx context.Context, endpoint string, body any) (*Response, error) {
	return s.Request(ctx, &Request{Endpoint: endpoint, Method: MethodPatch, Body: body})
}

// Delete issues a DELETE.
func (s *Service) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return s.Request(ctx, &Request{Endpoint: endpoint, Method: MethodDelete})
}

// SetCache stores value under key. A non-positive ttl uses the service default.
func (s *Service) SetCache(key string, value *Response, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaults.cacheTTL
	}
	s.cache.Set(key, value, ttl)
	s.metrics.RecordCacheSize(s.name, s.cache.Len())
}

// GetCache returns the live cached response for key.
func (s *Service) GetCache(key string) (*Response, bool) {
	resp, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return resp.clone(), true
}

// ClearCache removes entries whose key contains pattern, or every entry
// when pattern is empty. It returns the number removed.
func (s *Service) ClearCache(pattern string) int {
	n := s.cache.Clear(pattern)
	s.metrics.RecordCacheSize(s.name, s.cache.Len())
	if n > 0 {
		s.logger.Debug("cache cleared", "service", s.name, "pattern", pattern, "removed", n)
	}
	return n
}

// CacheLen returns the number of cache entries, stale ones included.
func (s *Service) CacheLen() int {
	return s.cache.Len()
}

// IsValid reports whether configuration validation passed at construction.
func (s *Service) IsValid() bool {
	return s.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (s *Service) ValidationError() error {
	return s.validationError
}

// Fetch runs req through s and decodes the payload into T.
func Fetch[T any](ctx context.Context, s *Service, req *Request) (*Result[T], error) {
	resp, err := s.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	return Decode[T](resp)
}

// Decode converts an untyped Response into a Result[T]. JSON payloads are
// unmarshalled; string and []byte payloads are assigned when T matches.
func Decode[T any](resp *Response) (*Result[T], error) {
	out := &Result[T]{}
	if resp == nil {
		return out, nil
	}
	out.Success = resp.Success
	out.Error = resp.Error
	if !resp.Success || resp.Data == nil {
		return out, nil
	}

	switch d := resp.Data.(type) {
	case T:
		out.Data = d
		return out, nil
	case json.RawMessage:
		if err := json.Unmarshal(d, &out.Data); err != nil {
			return nil, decodeError(resp, err)
		}
		return out, nil
	case string:
		if err := json.Unmarshal([]byte(d), &out.Data); err != nil {
			return nil, decodeError(resp, err)
		}
		return out, nil
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, decodeError(resp, err)
	}
	if err := json.Unmarshal(raw, &out.Data); err != nil {
		return nil, decodeError(resp, err)
	}
	return out, nil
}

func decodeError(resp *Response, err error) *ServiceError {
	return &ServiceError{
		Message:   "decode response data",
		Status:    resp.Status,
		Code:      CodeDecode,
		Cause:     err,
		Timestamp: time.Now(),
	}
}
