package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const credentialsFileName = "credentials.json"

// DefaultPath returns ~/.svcpipe/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".svcpipe", credentialsFileName), nil
}

// LoadFile reads a credential saved by SaveFile.
func LoadFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	if tok.Expiry.IsZero() {
		if exp, ok := ExpiresAt(tok.AccessToken); ok {
			tok.Expiry = exp
		}
	}
	return &tok, nil
}

// SaveFile writes tok to path with owner-only permissions.
func SaveFile(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
