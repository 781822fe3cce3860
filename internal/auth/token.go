// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// Session token defaults.
const (
	DefaultSessionTTL    = 7 * 24 * time.Hour
	DefaultSessionIssuer = "passwordless"

	// MinSecretLength is the shortest accepted SESSION_SECRET.
	MinSecretLength = 32
)

const signingKeyInfo = "passwordless session signing key v1"

// SessionClaims are the claims embedded in a session token.
type SessionClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenSigner mints and validates HS256 session tokens.
type TokenSigner struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenSignerOption configures a TokenSigner.
type TokenSignerOption func(*TokenSigner)

// WithTokenClock sets the clock used for issuing and validating tokens.
func WithTokenClock(now func() time.Time) TokenSignerOption {
	return func(s *TokenSigner) {
		s.now = now
	}
}

// NewTokenSigner derives the HMAC key from secret with HKDF-SHA256 so that
// operators can supply any sufficiently long passphrase.
func NewTokenSigner(secret []byte, issuer string, ttl time.Duration, opts ...TokenSignerOption) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("SESSION_SECRET_TOO_SHORT").
			With("min_length", MinSecretLength).
			Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" {
		return nil, oops.Code("SESSION_INVALID_ISSUER").Errorf("issuer cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_INVALID_TTL").With("ttl", ttl.String()).Errorf("session ttl must be positive")
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, oops.Code("SESSION_KEY_DERIVE_FAILED").Wrap(err)
	}

	s := &TokenSigner{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the validity window of minted tokens.
func (s *TokenSigner) TTL() time.Duration {
	return s.ttl
}

// Sign mints a token for user and returns it with its expiry.
func (s *TokenSigner) Sign(user *User) (string, time.Time, error) {
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	claims := SessionClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, oops.Code("SESSION_SIGN_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return token, expiresAt, nil
}

// Parse validates signature, issuer and expiry and returns the claims.
func (s *TokenSigner) Parse(token string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, oops.Code("SESSION_TOKEN_INVALID").Wrap(err)
	}
	return claims, nil
}
