package apiexec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenWithoutExpiry = errors.New("access token carries no exp claim")

// AuthSession is the credential pair owned by a CredentialStore.
// Empty strings mean absent.
type AuthSession struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// Tenant overrides the configured tenant header when set.
	Tenant string `json:"tenant,omitempty"`
}

// Empty reports whether neither token is present.
func (s AuthSession) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// AccessTokenExpiry decodes the exp claim of the access token. The signature
// is not verified, that is the server's job; only the claim is read.
// It is recomputed on every call so a stale value is never trusted.
func (s AuthSession) AccessTokenExpiry() (time.Time, error) {
	if s.AccessToken == "" {
		return time.Time{}, errors.New("no access token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("decoding access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrTokenWithoutExpiry
	}
	return exp.Time, nil
}

// Subject returns the sub claim of the access token, "" when the token is
// absent or carries none.
func (s AuthSession) Subject() string {
	if s.AccessToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

// ValidAt reports whether the access token is decodable and unexpired at
// now+skew.
func (s AuthSession) ValidAt(now time.Time, skew time.Duration) bool {
	exp, err := s.AccessTokenExpiry()
	if err != nil {
		return false
	}
	return exp.After(now.Add(skew))
}

// CredentialStore holds the current AuthSession. Implementations must be
// safe for concurrent use.
type CredentialStore interface {
	Get() (AuthSession, error)
	Set(AuthSession) error
	Clear() error
	// Persisted distinguishes "never logged in" from "session expired".
	Persisted() bool
}
