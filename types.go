package svcpipe

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// HTTP methods accepted by the pipeline.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
)

// Descriptor defaults applied when a Request leaves the field unset.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultRetries  = 2
	DefaultCacheTTL = 5 * time.Minute
)

// Request describes one call through the pipeline. Middlewares may add
// headers but must not remove entries set by an earlier middleware.
type Request struct {
	Endpoint string
	Method   string
	Headers  map[string]string
	Body     any
	Query    map[string]any

	// Timeout bounds a single network attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is the retry budget; nil means DefaultRetries.
	Retries *int
	// SkipAuth disables the Authentication middleware for this call.
	SkipAuth bool

	UseCache bool
	CacheKey string
	// CacheTTL is the lifetime of a stored entry. Zero means DefaultCacheTTL.
	CacheTTL time.Duration
}

// Response is the envelope every pipeline call resolves to.
// Success=true implies Error is empty; Success=false implies Data is nil.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Status is the HTTP status the payload arrived with; 0 for responses
	// not produced by the network.
	Status int `json:"-"`
}

func (r *Response) clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	switch d := r.Data.(type) {
	case json.RawMessage:
		out.Data = append(json.RawMessage(nil), d...)
	case []byte:
		out.Data = append([]byte(nil), d...)
	}
	return &out
}

// Result is the typed form of Response produced by Fetch.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// Handler invokes the remainder of the chain.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Middleware is one unit of the execution chain. It may transform the
// request, short-circuit, retry, or call next any number of times.
type Middleware interface {
	Handle(ctx context.Context, req *Request, next Handler) (*Response, error)
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, req *Request, next Handler) (*Response, error)

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	return f(ctx, req, next)
}

// TokenStore owns the bearer credential used by the Authentication middleware.
type TokenStore interface {
	// StoredToken returns the current access token or "" when none is stored.
	StoredToken() string
	// RefreshToken obtains a new access token.
	RefreshToken(ctx context.Context) error
	// Logout clears stored credentials and signals the login surface.
	Logout()
}

// Logger is the structured logging interface. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock abstracts time for cache expiry and retry backoff.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Multipart is a form body encoded with mime/multipart. Any Content-Type
// header on the request is replaced by the writer's boundary type.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is a single file in a Multipart body.
type FilePart struct {
	Field    string
	FileName string
	Content  io.Reader
}

// Backoff computes the delay after a failed attempt (1-indexed) before the next one.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Int returns a pointer to n, for Request.Retries.
func Int(n int) *int {
	return &n
}
