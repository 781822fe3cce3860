// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

// Session is a minted, stateless session. Nothing about it is stored
// server side; validity is the token signature and expiry.
type Session struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// CookiePolicy decides the attributes of the session cookie.
type CookiePolicy struct {
	// Secure marks the cookie for encrypted transport only.
	Secure bool
	// CrossSite requests SameSite=None. It only takes effect with Secure.
	CrossSite bool
	// MaxAge matches the token validity window.
	MaxAge time.Duration
	// Domain optionally scopes the cookie.
	Domain string
}

// SameSite returns None only for secure cross-site deployments, Lax otherwise.
func (p CookiePolicy) SameSite() http.SameSite {
	if p.CrossSite && p.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Cookie builds the Set-Cookie value delivering token.
func (p CookiePolicy) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   int(p.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite(),
	}
}

// Clear builds a cookie that removes the session cookie from the client.
func (p CookiePolicy) Clear() *http.Cookie {
	c := p.Cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// SessionIssuer resolves users and mints session tokens.
type SessionIssuer struct {
	users   UserStore
	signer  *TokenSigner
	cookies CookiePolicy
	now     func() time.Time
	metrics *Metrics
	logger  *slog.Logger

	storeTimeout time.Duration
}

// SessionOption configures a SessionIssuer.
type SessionOption func(*SessionIssuer)

// WithSessionMetrics records session metrics.
func WithSessionMetrics(m *Metrics) SessionOption {
	return func(s *SessionIssuer) {
		s.metrics = m
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionIssuer) {
		s.logger = l
	}
}

// WithSessionClock sets the clock used for new user timestamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionIssuer) {
		s.now = now
	}
}

// WithSessionStoreTimeout bounds each user store call.
func WithSessionStoreTimeout(d time.Duration) SessionOption {
	return func(s *SessionIssuer) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewSessionIssuer creates a SessionIssuer. The cookie MaxAge is forced to
// the signer TTL so cookie and token expire together.
func NewSessionIssuer(users UserStore, signer *TokenSigner, cookies CookiePolicy, opts ...SessionOption) (*SessionIssuer, error) {
	if users == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("user store is required")
	}
	if signer == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("token signer is required")
	}
	cookies.MaxAge = signer.TTL()
	s := &SessionIssuer{
		users:   users,
		signer:  signer,
		cookies: cookies,
		now:     time.Now,
		logger:  slog.Default(),

		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Cookies returns the cookie policy in effect.
func (s *SessionIssuer) Cookies() CookiePolicy {
	return s.cookies
}

// Signer returns the token signer, for validating presented tokens.
func (s *SessionIssuer) Signer() *TokenSigner {
	return s.signer
}

// IssueSession resolves or creates the user for email and mints a token.
// Call only after a successful verification.
func (s *SessionIssuer) IssueSession(ctx context.Context, email string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "auth.IssueSession")
	defer span.End()

	email = NormalizeEmail(email)
	user, err := s.resolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(user)
	if err != nil {
		return nil, err
	}

	s.metrics.recordSession()
	s.logger.InfoContext(ctx, "session issued", "user_id", user.ID.String())
	return &Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// resolveUser returns the existing user or creates one. A concurrent
// creator winning the unique race is resolved by reading again.
func (s *SessionIssuer) resolveUser(ctx context.Context, email string) (*User, error) {
	user, err := s.getUser(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("SESSION_USER_LOOKUP_FAILED").With("operation", "GetByEmail").Wrap(err)
	}

	user, err = NewUser(email, s.now())
	if err != nil {
		return nil, err
	}
	err = s.createUser(ctx, user)
	if err == nil {
		s.logger.InfoContext(ctx, "user created", "user_id", user.ID.String())
		return user, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return nil, oops.Code("SESSION_USER_CREATE_FAILED").With("operation", "Create").Wrap(err)
	}

	user, err = s.getUser(ctx, email)
	if err != nil {
		return nil, oops.Code("SESSION_USER_LOOKUP_FAILED").With("operation", "GetByEmail after conflict").Wrap(err)
	}
	return user, nil
}

func (s *SessionIssuer) getUser(ctx context.Context, email string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.users.GetByEmail(ctx, email)
}

func (s *SessionIssuer) createUser(ctx context.Context, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.users.Create(ctx, user)
}
