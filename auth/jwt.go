package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ExpiresAt reads the exp claim of a JWT access token without verifying its
// signature. It reports false for opaque tokens or tokens without exp.
func ExpiresAt(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case json.Number:
		v, err := exp.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(v, 0), true
	}
	return time.Time{}, false
}

// ExpiresWithin reports whether the JWT access token expires before now+skew.
// Tokens without a readable exp never report expiry.
func ExpiresWithin(accessToken string, now time.Time, skew time.Duration) bool {
	exp, ok := ExpiresAt(accessToken)
	if !ok {
		return false
	}
	return !exp.After(now.Add(skew))
}
