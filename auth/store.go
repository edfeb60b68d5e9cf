// Package auth provides token stores for the svcpipe Authentication
// middleware. Credentials are held as *oauth2.Token values so the standard
// golang.org/x/oauth2 refresh flow can renew them.
package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNoRefresher is returned by RefreshToken when the store cannot renew credentials.
	ErrNoRefresher = errors.New("auth: no refresher configured")
	// ErrNoRefreshToken is returned when the current credential carries no refresh token.
	ErrNoRefreshToken = errors.New("auth: no refresh token")
	// ErrEmptyToken is returned when a refresh yields no access token.
	ErrEmptyToken = errors.New("auth: refresh returned an empty token")
)

// Refresher exchanges the current credential for a new one.
type Refresher func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error)

// Store is a concurrency-safe token store. It satisfies svcpipe.TokenStore.
type Store struct {
	mu    sync.RWMutex
	token *oauth2.Token

	refreshMu   sync.Mutex
	refresher   Refresher
	path        string
	onLogout    func()
	onSaveError func(error)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRefresher sets the function used by RefreshToken.
func WithRefresher(r Refresher) StoreOption {
	return func(s *Store) {
		s.refresher = r
	}
}

// WithFile persists refreshed credentials to path and removes the file on logout.
func WithFile(path string) StoreOption {
	return func(s *Store) {
		s.path = path
	}
}

// WithLogoutHook registers fn to run after credentials are cleared, e.g. to
// send the user back to a login surface.
func WithLogoutHook(fn func()) StoreOption {
	return func(s *Store) {
		s.onLogout = fn
	}
}

// WithSaveErrorHook registers fn to receive errors from persisting a
// refreshed credential. Refresh itself still succeeds.
func WithSaveErrorHook(fn func(error)) StoreOption {
	return func(s *Store) {
		s.onSaveError = fn
	}
}

// NewStore creates a store holding tok, which may be nil.
func NewStore(tok *oauth2.Token, opts ...StoreOption) *Store {
	s := &Store{token: tok}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStaticStore creates a store from a raw access token. A JWT's exp claim
// becomes the token expiry.
func NewStaticStore(accessToken string, opts ...StoreOption) *Store {
	var tok *oauth2.Token
	if accessToken != "" {
		tok = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
		if exp, ok := ExpiresAt(accessToken); ok {
			tok.Expiry = exp
		}
	}
	return NewStore(tok, opts...)
}

// OpenFile loads credentials from path and keeps the store bound to it.
// A missing file yields an empty store.
func OpenFile(path string, opts ...StoreOption) (*Store, error) {
	tok, err := LoadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return NewStore(tok, append([]StoreOption{WithFile(path)}, opts...)...), nil
}

// StoredToken returns the access token or "" when none is held.
func (s *Store) StoredToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// Token returns a copy of the held credential, or nil.
func (s *Store) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil
	}
	tok := *s.token
	return &tok
}

// SetToken replaces the held credential.
func (s *Store) SetToken(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

// RefreshToken renews the credential through the configured Refresher.
// Concurrent calls are serialized.
func (s *Store) RefreshToken(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.refresher == nil {
		return ErrNoRefresher
	}
	tok, err := s.refresher(ctx, s.Token())
	if err != nil {
		return err
	}
	if tok == nil || tok.AccessToken == "" {
		return ErrEmptyToken
	}
	if tok.Expiry.IsZero() {
		if exp, ok := ExpiresAt(tok.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	s.SetToken(tok)

	// The refreshed credential is usable even when it cannot be persisted.
	if s.path != "" {
		if err := SaveFile(s.path, tok); err != nil && s.onSaveError != nil {
			s.onSaveError(err)
		}
	}
	return nil
}

// Logout clears the credential, removes the backing file and runs the logout hook.
func (s *Store) Logout() {
	s.SetToken(nil)
	if s.path != "" {
		_ = os.Remove(s.path)
	}
	if s.onLogout != nil {
		s.onLogout()
	}
}

// OAuth2Refresher renews credentials with the refresh_token grant of cfg.
func OAuth2Refresher(cfg *oauth2.Config) Refresher {
	return func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
		if current == nil || current.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		// An empty, expired copy forces the token source to hit the endpoint.
		stale := &oauth2.Token{
			RefreshToken: current.RefreshToken,
			TokenType:    current.TokenType,
			Expiry:       time.Now().Add(-time.Minute),
		}
		return cfg.TokenSource(ctx, stale).Token()
	}
}
