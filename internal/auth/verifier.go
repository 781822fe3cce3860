// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome is the result of a verification attempt.
type Outcome int

// Verification outcomes. Only OutcomeSuccess may lead to a session.
const (
	OutcomeNoActiveCode Outcome = iota
	OutcomeSuccess
	OutcomeInvalidCode
	OutcomeAttemptsExhausted
	OutcomeExpired
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoActiveCode:
		return "no_active_code"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeAttemptsExhausted:
		return "attempts_exhausted"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// VerifyResult reports a verification outcome. AttemptsLeft is for
// operational logging only and must never be sent to the client.
type VerifyResult struct {
	Outcome      Outcome
	AttemptsLeft int
}

// OK reports whether the secret was accepted.
func (r VerifyResult) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Verifier checks submitted secrets against stored digests.
type Verifier struct {
	store        CodeStore
	hasher       Hasher
	now          func() time.Time
	storeTimeout time.Duration
	metrics      *Metrics
	logger       *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock sets the clock compared against deadlines.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithVerifierMetrics records verification metrics.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = l
	}
}

// WithVerifierStoreTimeout bounds each store call.
func WithVerifierStoreTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.storeTimeout = d
	}
}

// NewVerifier creates a Verifier.
func NewVerifier(store CodeStore, hasher Hasher, opts ...VerifierOption) (*Verifier, error) {
	if store == nil {
		return nil, oops.Code("VERIFIER_INVALID_CONFIG").Errorf("code store is required")
	}
	if hasher == nil {
		return nil, oops.Code("VERIFIER_INVALID_CONFIG").Errorf("hasher is required")
	}
	v := &Verifier{
		store:        store,
		hasher:       hasher,
		now:          time.Now,
		storeTimeout: DefaultStoreTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks secret against the active code for (email, purpose).
//
// The returned error is non-nil only for persistence failures. Every other
// failure is reported through VerifyResult.Outcome so callers can collapse
// them into one public message.
func (v *Verifier) Verify(ctx context.Context, email string, purpose Purpose, secret string) (VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Verify")
	defer span.End()

	email = NormalizeEmail(email)
	if err := purpose.Validate(); err != nil {
		return VerifyResult{}, err
	}
	span.SetAttributes(attribute.String("auth.purpose", string(purpose)))

	pred := ConsumePredicate{
		Digest: v.hasher.Digest(secret),
		Now:    v.now(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()
	start := time.Now()
	res, err := v.store.TryConsumeOrDecrement(storeCtx, email, purpose, pred)
	v.metrics.observeStore("try_consume", start)
	if err != nil {
		return VerifyResult{}, persistenceError("TryConsumeOrDecrement", err)
	}

	result := resultFromConsume(res)
	span.SetAttributes(attribute.String("auth.outcome", result.Outcome.String()))
	v.metrics.recordVerification(result.Outcome)

	if result.OK() {
		v.logger.InfoContext(ctx, "auth code verified", "purpose", purpose)
	} else {
		v.logger.WarnContext(ctx, "auth code rejected",
			"purpose", purpose,
			"outcome", result.Outcome.String(),
			"attempts_left", result.AttemptsLeft,
		)
	}
	return result, nil
}

func resultFromConsume(res ConsumeResult) VerifyResult {
	switch res.Status {
	case ConsumeSuccess:
		return VerifyResult{Outcome: OutcomeSuccess}
	case ConsumeExpired:
		return VerifyResult{Outcome: OutcomeExpired}
	case ConsumeDecremented:
		if res.AttemptsLeft <= 0 {
			return VerifyResult{Outcome: OutcomeAttemptsExhausted}
		}
		return VerifyResult{Outcome: OutcomeInvalidCode, AttemptsLeft: res.AttemptsLeft}
	default:
		return VerifyResult{Outcome: OutcomeNoActiveCode}
	}
}
