package svcpipe

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Option configures a Service.
type Option func(*Service)

// WithBaseURL sets the base every relative endpoint is resolved against.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		s.baseURL = baseURL
	}
}

// WithServiceName sets the name stamped on errors, logs and metrics.
func WithServiceName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.name = name
		}
	}
}

// WithHTTPClient sets a custom HTTP client. Per-attempt timeouts come from
// the request context, so the client's own Timeout is left untouched. A nil
// client keeps the default HTTP/2-capable transport.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithLogger sets the structured logger. *slog.Logger satisfies Logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenStore sets the bearer token collaborator.
func WithTokenStore(store TokenStore) Option {
	return func(s *Service) {
		s.tokens = store
	}
}

// WithClock replaces the wall clock used for cache expiry and retry backoff.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(s *Service) {
		s.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(s *Service) {
		s.metrics = collector
	}
}

// WithBackoff replaces the retry delay policy (default 1s, 2s, 4s, ...).
func WithBackoff(b Backoff) Option {
	return func(s *Service) {
		s.backoff = b
	}
}

// WithDefaultTimeout sets the per-attempt timeout for requests that leave Timeout unset.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.defaults.timeout = d
	}
}

// WithDefaultRetries sets the retry budget for requests that leave Retries nil.
func WithDefaultRetries(n int) Option {
	return func(s *Service) {
		s.defaults.retries = n
	}
}

// WithDefaultCacheTTL sets the cache lifetime for requests that leave CacheTTL unset.
func WithDefaultCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		s.defaults.cacheTTL = d
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.requestIDGen = gen
	}
}

// WithRefreshBeforeExpiry refreshes JWT bearer tokens that expire within d
// before sending them.
func WithRefreshBeforeExpiry(d time.Duration) Option {
	return func(s *Service) {
		s.refreshBeforeExpiry = d
	}
}

// WithMaxResponseBody caps the response payload read per attempt. A larger
// successful response fails with DECODE_ERROR. Zero keeps the 32 MiB default.
func WithMaxResponseBody(n int64) Option {
	return func(s *Service) {
		s.maxResponseBody = n
	}
}

// ValidateConfiguration validates the service configuration and returns an error if invalid
func (s *Service) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, s.validateTransportConfig()...)
	errors = append(errors, s.validateDefaults()...)
	errors = append(errors, s.validateCollaborators()...)
	errors = append(errors, s.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ServiceError{
			Message: "configuration validation failed",
			Code:    CodeValidation,
			Service: s.name,
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (s *Service) validateTransportConfig() []string {
	var errors []string

	if s.baseURL != "" {
		u, err := url.Parse(s.baseURL)
		switch {
		case err != nil:
			errors = append(errors, fmt.Sprintf("baseURL is not a valid URL: %v", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errors = append(errors, "baseURL scheme must be http or https")
		case u.Host == "":
			errors = append(errors, "baseURL must include a host")
		}
	}

	return errors
}

func (s *Service) validateDefaults() []string {
	var errors []string

	if s.defaults.timeout <= 0 {
		errors = append(errors, "default timeout must be positive")
	}
	if s.defaults.retries < 0 {
		errors = append(errors, "default retries must be non-negative")
	}
	if s.defaults.cacheTTL <= 0 {
		errors = append(errors, "default cacheTTL must be positive")
	}
	if s.refreshBeforeExpiry < 0 {
		errors = append(errors, "refreshBeforeExpiry must be non-negative")
	}
	if s.maxResponseBody < 0 {
		errors = append(errors, "maxResponseBody must be non-negative")
	}

	return errors
}

func (s *Service) validateCollaborators() []string {
	var errors []string

	if s.backoff == nil {
		errors = append(errors, "backoff cannot be nil")
	}
	if s.requestIDGen == nil {
		errors = append(errors, "request ID generator cannot be nil")
	}
	if s.refreshBeforeExpiry > 0 && s.tokens == nil {
		errors = append(errors, "refreshBeforeExpiry requires a token store")
	}

	return errors
}

func (s *Service) validateExtremeValues() []string {
	var errors []string

	if s.defaults.retries > 100 {
		errors = append(errors, "default retries > 100 may cause excessive resource usage")
	}
	if s.defaults.timeout > 10*time.Minute {
		errors = append(errors, "default timeout > 10m may cause requests to hang for too long")
	}
	if s.defaults.cacheTTL > 24*time.Hour {
		errors = append(errors, "default cacheTTL > 24h may cause stale data issues")
	}

	return errors
}
