package svcpipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const maxResponseBody = 32 << 20

var errAttemptTimeout = errors.New("svcpipe: attempt timed out")

// executor performs exactly one network attempt for a prepared Request.
type executor struct {
	baseURL    string
	httpClient *http.Client
	clock      Clock
	userAgent  string

	// maxBody caps the response payload; zero means maxResponseBody.
	maxBody int64
}

// attemptContext derives the context of one network attempt. It is done as
// soon as either the caller's ctx or the attempt timer fires; whichever comes
// first wins and the other becomes a no-op.
func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeoutCause(ctx, timeout, errAttemptTimeout)
}

func (e *executor) execute(ctx context.Context, req *Request) (*Response, error) {
	target, err := e.buildURL(req)
	if err != nil {
		return nil, &ServiceError{
			Message:   "invalid endpoint " + strconv.Quote(req.Endpoint),
			Code:      CodeValidation,
			Cause:     err,
			Timestamp: e.clock.Now(),
		}
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, &ServiceError{
			Message:   "encode request body",
			Code:      CodeValidation,
			Cause:     err,
			Timestamp: e.clock.Now(),
		}
	}

	timeout := req.timeout()
	attemptCtx, cancel := attemptContext(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.method(), target, body)
	if err != nil {
		return nil, &ServiceError{
			Message:   "build request",
			Code:      CodeValidation,
			Cause:     err,
			Timestamp: e.clock.Now(),
		}
	}
	for k, v := range req.Headers {
		if contentType != "" && strings.EqualFold(k, "Content-Type") {
			continue
		}
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if e.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, e.transportError(ctx, attemptCtx, timeout, err)
	}
	defer resp.Body.Close()

	limit := e.maxBody
	if limit <= 0 {
		limit = maxResponseBody
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, e.transportError(ctx, attemptCtx, timeout, err)
	}
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if int64(len(raw)) > limit {
		if success {
			return nil, &ServiceError{
				Message:   fmt.Sprintf("response body exceeds limit of %d bytes", limit),
				Status:    resp.StatusCode,
				Code:      CodeDecode,
				Timestamp: e.clock.Now(),
			}
		}
		// Error details are informational; keep what fits.
		raw = raw[:limit]
	}

	data, decodeErr := decodeBody(resp.Header.Get("Content-Type"), raw)

	if !success {
		return nil, newHTTPError(resp.StatusCode, errorDetails(data), e.clock.Now())
	}
	if decodeErr != nil {
		return nil, &ServiceError{
			Message:   "decode response body",
			Status:    resp.StatusCode,
			Code:      CodeDecode,
			Cause:     decodeErr,
			Timestamp: e.clock.Now(),
		}
	}
	out := envelope(data)
	out.Status = resp.StatusCode
	return out, nil
}

func (e *executor) transportError(ctx, attemptCtx context.Context, timeout time.Duration, err error) *ServiceError {
	now := e.clock.Now()
	switch {
	case ctx.Err() != nil:
		return &ServiceError{Message: "request aborted", Code: CodeAborted, Cause: ctx.Err(), Timestamp: now}
	case errors.Is(context.Cause(attemptCtx), errAttemptTimeout):
		return &ServiceError{
			Message:   fmt.Sprintf("request timed out after %s", timeout),
			Code:      CodeTimeout,
			Cause:     err,
			Timestamp: now,
		}
	default:
		return &ServiceError{Message: "network request failed", Code: CodeNetwork, Cause: err, Timestamp: now}
	}
}

// buildURL resolves the endpoint against the base URL and appends the
// non-empty query parameters.
func (e *executor) buildURL(req *Request) (string, error) {
	raw := req.Endpoint
	if !strings.Contains(raw, "://") {
		if e.baseURL == "" {
			return "", fmt.Errorf("relative endpoint without base URL")
		}
		raw = strings.TrimRight(e.baseURL, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("endpoint %q is not absolute", raw)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			if s, ok := queryValue(v); ok {
				q.Set(k, s)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func queryValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		s := t.String()
		return s, s != ""
	default:
		s := fmt.Sprint(t)
		return s, s != ""
	}
}

// encodeBody returns the wire body and, when the body dictates it, the
// Content-Type that must replace any header set by the caller.
func encodeBody(req *Request) (io.Reader, string, error) {
	switch b := req.Body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	case *Multipart:
		return encodeMultipart(b)
	}
	if req.method() == MethodGet {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	ct := ""
	if !hasHeader(req.Headers, "Content-Type") {
		ct = "application/json"
	}
	return bytes.NewReader(data), ct, nil
}

func encodeMultipart(m *Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range m.Fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range m.Files {
		part, err := w.CreateFormFile(f.Field, f.FileName)
		if err != nil {
			return nil, "", err
		}
		if f.Content != nil {
			if r, ok := f.Content.(*bytes.Reader); ok {
				if _, err := r.Seek(0, io.SeekStart); err != nil {
					return nil, "", err
				}
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeBody maps a payload by content type: JSON stays raw for typed
// decoding later, text becomes a string, anything else stays bytes.
func decodeBody(contentType string, raw []byte) (any, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		if !json.Valid(raw) {
			return string(raw), fmt.Errorf("invalid JSON payload")
		}
		return json.RawMessage(raw), nil
	case strings.HasPrefix(mediaType, "text/"):
		return string(raw), nil
	default:
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
}

// errorDetails turns a decoded error payload into a plain value for ServiceError.Details.
func errorDetails(data any) any {
	raw, ok := data.(json.RawMessage)
	if !ok {
		return data
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// envelope returns the payload as a Response, keeping a body that already
// has the {success, data, error} shape.
func envelope(data any) *Response {
	raw, ok := data.(json.RawMessage)
	if !ok {
		return &Response{Success: true, Data: data}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &Response{Success: true, Data: raw}
	}
	var success bool
	flag, ok := fields["success"]
	if !ok || json.Unmarshal(flag, &success) != nil {
		return &Response{Success: true, Data: raw}
	}
	if success {
		resp := &Response{Success: true}
		if d, ok := fields["data"]; ok && string(d) != "null" {
			resp.Data = d
		}
		return resp
	}
	resp := &Response{Success: false}
	if e, ok := fields["error"]; ok {
		var msg string
		if json.Unmarshal(e, &msg) == nil {
			resp.Error = msg
		} else if string(e) != "null" {
			resp.Error = string(e)
		}
	}
	return resp
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func newDefaultHTTPClient() *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if h2, err := http2.ConfigureTransports(t); err == nil {
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 15 * time.Second
	}
	return &http.Client{Transport: t}
}
