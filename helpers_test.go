package svcpipe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const (
	unexpectedErrMsg  = "Request() returned unexpected error: %v"
	expectedErrMsg    = "Expected an error, got response %+v"
	writeResponseMsg  = "Failed to write response: %v"
	expectedCallsMsg  = "Expected %d downstream calls, got %d"
	expectedCodeMsg   = "Expected code %q, got %q"
	expectedStatusMsg = "Expected status %d, got %d"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep records d and advances the clock without blocking.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeTokenStore struct {
	mu         sync.Mutex
	token      string
	refreshTo  string
	refreshErr error
	refreshes  int
	logouts    int
}

func (s *fakeTokenStore) StoredToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeTokenStore) RefreshToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.token = s.refreshTo
	return nil
}

func (s *fakeTokenStore) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.token = ""
}

func (s *fakeTokenStore) counts() (refreshes, logouts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes, s.logouts
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type memoryLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *memoryLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *memoryLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *memoryLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *memoryLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *memoryLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// find returns the first entry with msg.
func (l *memoryLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (l *memoryLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}

// arg returns the value following key in a key/value list.
func (e logEntry) arg(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1], true
		}
	}
	return nil, false
}

// newTestService starts handler behind httptest and returns a Service
// pointed at it with a fake clock and a token store holding "token-1".
func newTestService(t *testing.T, handler http.Handler, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	base := []Option{
		WithBaseURL(newTestServer(t, handler)),
		WithServiceName("items"),
		WithClock(clock),
		WithTokenStore(&fakeTokenStore{token: "token-1"}),
	}
	svc := New(append(base, opts...)...)
	if !svc.IsValid() {
		t.Fatalf("Invalid test service: %v", svc.ValidationError())
	}
	return svc, clock
}

// newTestServer starts handler behind httptest and returns its URL.
func newTestServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

type headerCapture struct {
	mu   sync.Mutex
	last http.Header
}

func (c *headerCapture) record(r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = r.Header.Clone()
}

func (c *headerCapture) get(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return ""
	}
	return c.last.Get(key)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf(writeResponseMsg, err)
	}
}

func mustServiceError(t *testing.T, err error) *ServiceError {
	t.Helper()
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *ServiceError, got %T: %v", err, err)
	}
	return se
}
