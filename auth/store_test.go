package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestNewStaticStore(t *testing.T) {
	s := NewStaticStore("opaque-token")
	if got := s.StoredToken(); got != "opaque-token" {
		t.Errorf("Expected opaque-token, got %q", got)
	}
	if !s.Token().Expiry.IsZero() {
		t.Error("Expected zero expiry for opaque token")
	}

	empty := NewStaticStore("")
	if got := empty.StoredToken(); got != "" {
		t.Errorf("Expected empty token, got %q", got)
	}
}

func TestNewStaticStoreReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	s := NewStaticStore(signedToken(t, exp))

	if got := s.Token().Expiry; !got.Equal(exp) {
		t.Errorf("Expected expiry %v, got %v", exp, got)
	}
}

func TestRefreshTokenWithoutRefresher(t *testing.T) {
	s := NewStaticStore("abc")
	if err := s.RefreshToken(context.Background()); !errors.Is(err, ErrNoRefresher) {
		t.Errorf("Expected ErrNoRefresher, got %v", err)
	}
}

func TestRefreshTokenReplacesCredential(t *testing.T) {
	calls := 0
	s := NewStaticStore("old", WithRefresher(func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
		calls++
		if current.AccessToken != "old" {
			t.Errorf("Expected current token old, got %q", current.AccessToken)
		}
		return &oauth2.Token{AccessToken: "new"}, nil
	}))

	if err := s.RefreshToken(context.Background()); err != nil {
		t.Fatalf("RefreshToken() returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 refresher call, got %d", calls)
	}
	if got := s.StoredToken(); got != "new" {
		t.Errorf("Expected new token, got %q", got)
	}
}

func TestRefreshTokenEmptyResult(t *testing.T) {
	s := NewStaticStore("old", WithRefresher(func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
		return &oauth2.Token{}, nil
	}))

	if err := s.RefreshToken(context.Background()); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Expected ErrEmptyToken, got %v", err)
	}
	if got := s.StoredToken(); got != "old" {
		t.Errorf("Expected token to stay old, got %q", got)
	}
}

func TestLogoutClearsAndRunsHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := SaveFile(path, &oauth2.Token{AccessToken: "abc"}); err != nil {
		t.Fatalf("SaveFile() returned error: %v", err)
	}

	hooked := 0
	s, err := OpenFile(path, WithLogoutHook(func() { hooked++ }))
	if err != nil {
		t.Fatalf("OpenFile() returned error: %v", err)
	}
	if got := s.StoredToken(); got != "abc" {
		t.Fatalf("Expected abc, got %q", got)
	}

	s.Logout()

	if got := s.StoredToken(); got != "" {
		t.Errorf("Expected empty token after logout, got %q", got)
	}
	if hooked != 1 {
		t.Errorf("Expected logout hook to run once, ran %d times", hooked)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected credentials file to be removed, stat err=%v", err)
	}
}

func TestOpenFileMissing(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("OpenFile() returned error: %v", err)
	}
	if got := s.StoredToken(); got != "" {
		t.Errorf("Expected empty store, got %q", got)
	}
}

func TestRefreshPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s := NewStaticStore("old",
		WithFile(path),
		WithRefresher(func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "fresh", RefreshToken: "r2"}, nil
		}),
	)

	if err := s.RefreshToken(context.Background()); err != nil {
		t.Fatalf("RefreshToken() returned error: %v", err)
	}

	tok, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if tok.AccessToken != "fresh" || tok.RefreshToken != "r2" {
		t.Errorf("Unexpected persisted token: %+v", tok)
	}
}

func TestRefreshSucceedsWhenFileUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	var saveErr error
	s := NewStaticStore("old",
		WithFile(filepath.Join(blocker, "credentials.json")),
		WithSaveErrorHook(func(err error) { saveErr = err }),
		WithRefresher(func(ctx context.Context, current *oauth2.Token) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "new"}, nil
		}),
	)

	if err := s.RefreshToken(context.Background()); err != nil {
		t.Fatalf("RefreshToken() returned error: %v", err)
	}
	if got := s.StoredToken(); got != "new" {
		t.Errorf("Expected refreshed token to be kept, got %q", got)
	}
	if saveErr == nil {
		t.Error("Expected the save error to reach the hook")
	}
}

func TestOAuth2Refresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Failed to parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("Expected refresh_token grant, got %q", got)
		}
		if got := r.Form.Get("refresh_token"); got != "r1" {
			t.Errorf("Expected refresh token r1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "renewed",
			"token_type":    "Bearer",
			"refresh_token": "r2",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	cfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	s := NewStore(&oauth2.Token{AccessToken: "expired", RefreshToken: "r1"}, WithRefresher(OAuth2Refresher(cfg)))

	if err := s.RefreshToken(context.Background()); err != nil {
		t.Fatalf("RefreshToken() returned error: %v", err)
	}
	if got := s.StoredToken(); got != "renewed" {
		t.Errorf("Expected renewed, got %q", got)
	}
	if got := s.Token().RefreshToken; got != "r2" {
		t.Errorf("Expected refresh token r2, got %q", got)
	}
}

func TestOAuth2RefresherWithoutRefreshToken(t *testing.T) {
	refresh := OAuth2Refresher(&oauth2.Config{})
	if _, err := refresh(context.Background(), &oauth2.Token{AccessToken: "a"}); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Expected ErrNoRefreshToken, got %v", err)
	}
}
