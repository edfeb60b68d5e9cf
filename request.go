package svcpipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

func (r *Request) method() string {
	if r.Method == "" {
		return MethodGet
	}
	return strings.ToUpper(r.Method)
}

func (r *Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Request) retries() int {
	if r.Retries == nil {
		return DefaultRetries
	}
	if *r.Retries < 0 {
		return 0
	}
	return *r.Retries
}

func (r *Request) cacheTTL() time.Duration {
	if r.CacheTTL <= 0 {
		return DefaultCacheTTL
	}
	return r.CacheTTL
}

// Operation names the call as "<METHOD> <endpoint>".
func (r *Request) Operation() string {
	return r.method() + " " + r.Endpoint
}

// SetHeader sets a header, allocating the map on first use.
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// Header returns the value of key, matched case-insensitively.
func (r *Request) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// CacheKeyFor returns the explicit CacheKey or a composite of method,
// endpoint and serialized query parameters.
func CacheKeyFor(r *Request) string {
	if r.CacheKey != "" {
		return r.CacheKey
	}
	key := r.method() + ":" + r.Endpoint
	if len(r.Query) == 0 {
		return key
	}
	// encoding/json sorts map keys, so the serialization is deterministic.
	params, err := json.Marshal(r.Query)
	if err != nil {
		return key + ":" + fmt.Sprint(r.Query)
	}
	return key + ":" + string(params)
}

// defaults holds the service-wide values for unset descriptor fields.
type defaults struct {
	timeout  time.Duration
	retries  int
	cacheTTL time.Duration
}

// prepare fills descriptor defaults without touching caller-visible fields.
func (r *Request) prepare(d defaults) *Request {
	out := *r
	out.Method = r.method()
	if out.Timeout <= 0 && d.timeout > 0 {
		out.Timeout = d.timeout
	}
	if out.Retries == nil && d.retries >= 0 {
		out.Retries = Int(d.retries)
	}
	if out.CacheTTL <= 0 && d.cacheTTL > 0 {
		out.CacheTTL = d.cacheTTL
	}
	out.Headers = make(map[string]string, len(r.Headers)+2)
	for k, v := range r.Headers {
		out.Headers[k] = v
	}
	return &out
}

// bufferBody reads stream bodies into memory once so every attempt sends the
// same payload. Multipart file contents become *bytes.Reader values that the
// executor rewinds before each encoding.
func (r *Request) bufferBody() error {
	switch b := r.Body.(type) {
	case nil, []byte:
		return nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		r.Body = data
	case *Multipart:
		if b == nil {
			return nil
		}
		m := &Multipart{Fields: b.Fields, Files: make([]FilePart, len(b.Files))}
		for i, f := range b.Files {
			if f.Content != nil {
				data, err := io.ReadAll(f.Content)
				if err != nil {
					return fmt.Errorf("read file %q: %w", f.FileName, err)
				}
				f.Content = bytes.NewReader(data)
			}
			m.Files[i] = f
		}
		r.Body = m
	}
	return nil
}

func validMethod(m string) bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch:
		return true
	}
	return false
}
