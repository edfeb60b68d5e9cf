package svcpipe

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error codes set by the pipeline itself. Codes of HTTP failures come from
// the response body when present, otherwise from the status number.
const (
	CodeAuthTokenMissing = "AUTH_TOKEN_MISSING"
	CodeNetwork          = "NETWORK_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeAborted          = "ABORTED"
	CodeDecode           = "DECODE_ERROR"
	CodeCircuitOpen      = "CIRCUIT_OPEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidation       = "VALIDATION_ERROR"
)

// Sentinel errors for errors.Is checks against a ServiceError code.
var (
	ErrAuthTokenMissing = &ServiceError{Code: CodeAuthTokenMissing}
	ErrTimeout          = &ServiceError{Code: CodeTimeout}
	ErrAborted          = &ServiceError{Code: CodeAborted}
	ErrCircuitOpen      = &ServiceError{Code: CodeCircuitOpen}
	ErrRateLimited      = &ServiceError{Code: CodeRateLimited}
)

// ServiceError is the single error type a pipeline call fails with. It is
// created once per failed chain and enriched in place by outer middlewares.
type ServiceError struct {
	Message   string
	Status    int // 0 when no HTTP response was obtained
	Code      string
	Details   any
	Timestamp time.Time
	Service   string
	Operation string
	Cause     error
}

// Error implements error.
func (e *ServiceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Operation != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Operation)
	}
	if e.Service != "" {
		msg = fmt.Sprintf("[%s] %s", e.Service, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *ServiceError by code.
func (e *ServiceError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*ServiceError); ok {
		return t.Code != "" && e.Code == t.Code
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ServiceError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Message: %s\n", e.Message)
	if e.Code != "" {
		info += fmt.Sprintf("Code: %s\n", e.Code)
	}
	if e.Status > 0 {
		info += fmt.Sprintf("Status: %d\n", e.Status)
	}
	if e.Service != "" {
		info += fmt.Sprintf("Service: %s\n", e.Service)
	}
	if e.Operation != "" {
		info += fmt.Sprintf("Operation: %s\n", e.Operation)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Details != nil {
		info += fmt.Sprintf("Details: %v\n", e.Details)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// annotate fills service, operation and timestamp where they are still unset.
func (e *ServiceError) annotate(service, operation string, now time.Time) {
	if e.Service == "" {
		e.Service = service
	}
	if e.Service == "" {
		e.Service = "unknown"
	}
	if e.Operation == "" {
		e.Operation = operation
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
}

// detach returns a private copy of a top-level *ServiceError so that callers
// sharing one result can enrich it independently.
func detach(err error) error {
	se, ok := err.(*ServiceError)
	if !ok {
		return err
	}
	cp := *se
	return &cp
}

// IsRetryable reports whether err is a transient failure: a network-class
// error with no HTTP status, or a status of 408, 429 or 5xx. Caller
// cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *ServiceError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Code {
	case CodeAborted, CodeAuthTokenMissing, CodeCircuitOpen, CodeValidation, CodeDecode:
		return false
	}
	switch {
	case se.Status == 0:
		return true
	case se.Status >= 500:
		return true
	case se.Status == http.StatusRequestTimeout, se.Status == http.StatusTooManyRequests:
		return true
	}
	return false
}

// AsServiceError returns err as a *ServiceError, wrapping foreign errors.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &ServiceError{
		Message: err.Error(),
		Code:    CodeNetwork,
		Cause:   err,
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func newHTTPError(status int, body any, now time.Time) *ServiceError {
	se := &ServiceError{
		Message:   fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
		Status:    status,
		Code:      strconv.Itoa(status),
		Details:   body,
		Timestamp: now,
	}
	if fields, ok := body.(map[string]any); ok {
		if code, ok := fields["code"].(string); ok && code != "" {
			se.Code = code
		}
		if msg, ok := fields["message"].(string); ok && msg != "" {
			se.Message = msg
		} else if msg, ok := fields["error"].(string); ok && msg != "" {
			se.Message = msg
		}
	}
	return se
}
