package svcpipe

import (
	"context"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/svcpipe/auth"
)

// AuthMiddleware attaches the stored bearer token and performs at most one
// refresh per call. A 401 after the refreshed retry, or a failed refresh,
// logs the user out and propagates the original error.
type AuthMiddleware struct {
	Service string
	Tokens  TokenStore
	Logger  Logger
	Clock   Clock
	Metrics *MetricsCollector
	// RefreshBeforeExpiry refreshes a JWT whose exp claim falls within this
	// window before it is sent. Zero disables proactive refresh.
	RefreshBeforeExpiry time.Duration
}

// Handle implements Middleware.
func (m *AuthMiddleware) Handle(ctx context.Context, req *Request, next Handler) (*Response, error) {
	if req.SkipAuth {
		return next(ctx, req)
	}

	clock := clockOrSystem(m.Clock)
	token := ""
	if m.Tokens != nil {
		token = m.Tokens.StoredToken()
	}
	if token == "" {
		return nil, &ServiceError{
			Message:   "authentication token missing",
			Status:    http.StatusUnauthorized,
			Code:      CodeAuthTokenMissing,
			Timestamp: clock.Now(),
			Service:   m.Service,
			Operation: req.Operation(),
		}
	}

	refreshed := false
	if m.RefreshBeforeExpiry > 0 && auth.ExpiresWithin(token, clock.Now(), m.RefreshBeforeExpiry) {
		refreshed = true
		if fresh, ok := m.refresh(ctx, req); ok {
			token = fresh
		}
	}

	req.SetHeader("Authorization", "Bearer "+token)
	resp, err := next(ctx, req)
	if err == nil || StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	if refreshed {
		m.logout(ctx, req)
		return nil, err
	}

	fresh, ok := m.refresh(ctx, req)
	if !ok {
		m.logout(ctx, req)
		return nil, err
	}

	req.SetHeader("Authorization", "Bearer "+fresh)
	resp, err = next(ctx, req)
	if err != nil && StatusCode(err) == http.StatusUnauthorized {
		m.logout(ctx, req)
	}
	return resp, err
}

func (m *AuthMiddleware) refresh(ctx context.Context, req *Request) (string, bool) {
	logger := loggerOrDiscard(m.Logger)

	err := m.Tokens.RefreshToken(ctx)
	token := ""
	if err == nil {
		token = m.Tokens.StoredToken()
	}
	if token == "" {
		m.Metrics.RecordAuthRefresh(m.Service, "failure")
		args := []any{"service", m.Service, "operation", req.Operation()}
		if err != nil {
			args = append(args, "error", err.Error())
		}
		logger.Warn("token refresh failed", args...)
		return "", false
	}

	m.Metrics.RecordAuthRefresh(m.Service, "success")
	logger.Info("token refreshed", "service", m.Service, "operation", req.Operation())
	return token, true
}

// logout clears credentials unless the caller gave up, in which case the
// failure says nothing about the token.
func (m *AuthMiddleware) logout(ctx context.Context, req *Request) {
	if ctx.Err() != nil {
		return
	}
	m.Tokens.Logout()
	m.Metrics.RecordLogout(m.Service)
	loggerOrDiscard(m.Logger).Warn("re-authentication failed, logged out",
		"service", m.Service, "operation", req.Operation())
}
