// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultStoreTimeout bounds every code store call.
const DefaultStoreTimeout = 3 * time.Second

var tracer = otel.Tracer("github.com/holomush/passwordless/internal/auth")

// IssuedCode is a freshly issued secret. Secret is the plaintext to deliver
// out of band and is never persisted.
type IssuedCode struct {
	Secret    string
	Email     string
	Purpose   Purpose
	Channel   Channel
	ExpiresAt time.Time
}

// CodeIssuer generates secrets and records their digests.
type CodeIssuer struct {
	store        CodeStore
	hasher       Hasher
	random       io.Reader
	now          func() time.Time
	ttl          time.Duration
	maxAttempts  int
	storeTimeout time.Duration
	policy       *EmailPolicy
	metrics      *Metrics
	logger       *slog.Logger
}

// IssuerOption configures a CodeIssuer.
type IssuerOption func(*CodeIssuer)

// WithCodeTTL sets how long issued codes stay valid.
func WithCodeTTL(ttl time.Duration) IssuerOption {
	return func(i *CodeIssuer) {
		i.ttl = ttl
	}
}

// WithMaxAttempts sets the attempt budget of issued codes.
func WithMaxAttempts(n int) IssuerOption {
	return func(i *CodeIssuer) {
		i.maxAttempts = n
	}
}

// WithRandom replaces the secure random source. Tests only.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *CodeIssuer) {
		i.random = r
	}
}

// WithIssuerClock sets the clock used for deadlines.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *CodeIssuer) {
		i.now = now
	}
}

// WithEmailPolicy restricts which addresses can be issued codes.
func WithEmailPolicy(p *EmailPolicy) IssuerOption {
	return func(i *CodeIssuer) {
		i.policy = p
	}
}

// WithIssuerMetrics records issuance metrics.
func WithIssuerMetrics(m *Metrics) IssuerOption {
	return func(i *CodeIssuer) {
		i.metrics = m
	}
}

// WithIssuerLogger sets the logger.
func WithIssuerLogger(l *slog.Logger) IssuerOption {
	return func(i *CodeIssuer) {
		i.logger = l
	}
}

// WithIssuerStoreTimeout bounds each store call.
func WithIssuerStoreTimeout(d time.Duration) IssuerOption {
	return func(i *CodeIssuer) {
		i.storeTimeout = d
	}
}

// NewCodeIssuer creates a CodeIssuer.
func NewCodeIssuer(store CodeStore, hasher Hasher, opts ...IssuerOption) (*CodeIssuer, error) {
	if store == nil {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("code store is required")
	}
	if hasher == nil {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("hasher is required")
	}
	i := &CodeIssuer{
		store:        store,
		hasher:       hasher,
		random:       rand.Reader,
		now:          time.Now,
		ttl:          DefaultCodeTTL,
		maxAttempts:  DefaultMaxAttempts,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.ttl <= 0 {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").With("ttl", i.ttl.String()).Errorf("code ttl must be positive")
	}
	if i.maxAttempts <= 0 {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").With("max_attempts", i.maxAttempts).Errorf("max attempts must be positive")
	}
	return i, nil
}

// TTL returns the validity window of issued codes.
func (i *CodeIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue generates a secret for (email, purpose), stores its digest and
// returns the plaintext. Any earlier code for the same key stops working
// as soon as the new record is written.
func (i *CodeIssuer) Issue(ctx context.Context, email string, purpose Purpose, channel Channel) (*IssuedCode, error) {
	ctx, span := tracer.Start(ctx, "auth.Issue")
	defer span.End()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := purpose.Validate(); err != nil {
		return nil, err
	}
	if err := channel.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("auth.purpose", string(purpose)),
		attribute.String("auth.channel", string(channel)),
	)

	// Rejected addresses still pay for a secret and its digest, so the
	// policy decision is not observable from response time.
	secret, err := GenerateSecret(i.random, channel)
	var digest string
	if err == nil {
		digest = i.hasher.Digest(secret)
	}
	if !i.policy.Allows(email) {
		i.logger.InfoContext(ctx, "code request rejected by email policy", "purpose", purpose)
		return nil, oops.Code("EMAIL_NOT_ALLOWED").With("purpose", string(purpose)).Wrap(ErrEmailNotAllowed)
	}
	if err != nil {
		return nil, err
	}

	code, err := NewAuthCode(email, purpose, channel, digest, i.now(), i.ttl, i.maxAttempts)
	if err != nil {
		return nil, oops.Code("ISSUE_FAILED").With("operation", "NewAuthCode").Wrap(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()
	start := time.Now()
	err = i.store.PutActive(storeCtx, code)
	i.metrics.observeStore("put_active", start)
	if err != nil {
		return nil, persistenceError("PutActive", err)
	}

	i.metrics.recordIssued(purpose, channel)
	i.logger.DebugContext(ctx, "auth code issued",
		"purpose", purpose,
		"channel", channel,
		"expires_at", code.ExpiresAt,
	)

	return &IssuedCode{
		Secret:    secret,
		Email:     email,
		Purpose:   purpose,
		Channel:   channel,
		ExpiresAt: code.ExpiresAt,
	}, nil
}
