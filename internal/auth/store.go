// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"
)

// CodeStore persists auth codes keyed by (email, purpose).
//
// Implementations must make PutActive and TryConsumeOrDecrement atomic
// with respect to every other call on the same key, across processes.
// No caller-side locking is expected.
type CodeStore interface {
	// PutActive replaces any record for the key with code. Last writer wins.
	PutActive(ctx context.Context, code *AuthCode) error

	// FetchActive returns the current record regardless of expiry.
	// Returns ErrNotFound when no record exists.
	FetchActive(ctx context.Context, email string, purpose Purpose) (*AuthCode, error)

	// TryConsumeOrDecrement evaluates pred against the record for the key
	// and applies the resulting transition in one indivisible step.
	TryConsumeOrDecrement(ctx context.Context, email string, purpose Purpose, pred ConsumePredicate) (ConsumeResult, error)

	// DeleteExpired purges records whose deadline is at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConsumePredicate is the condition a record must meet to be consumed.
// It is plain data so that each store can evaluate it inside its own
// atomic primitive (row lock, Lua script, mutex).
type ConsumePredicate struct {
	Digest string
	Now    time.Time
}

// Evaluate decides the transition for code. Expiry is checked before the
// digest so an expired record can never be consumed.
func (p ConsumePredicate) Evaluate(code *AuthCode) ConsumeStatus {
	if code.IsExpiredAt(p.Now) {
		return ConsumeExpired
	}
	if DigestEqual(code.Digest(), p.Digest) {
		return ConsumeSuccess
	}
	return ConsumeDecremented
}

// ConsumeStatus is the transition applied by TryConsumeOrDecrement.
type ConsumeStatus int

// Consume statuses.
const (
	// ConsumeNoActiveCode means no record existed for the key.
	ConsumeNoActiveCode ConsumeStatus = iota
	// ConsumeSuccess means the predicate held and the record was deleted.
	ConsumeSuccess
	// ConsumeDecremented means the digest did not match and attempts were
	// decremented. The record was deleted if the new count is <= 0.
	ConsumeDecremented
	// ConsumeExpired means the record was past its deadline and was deleted.
	ConsumeExpired
)

// String implements fmt.Stringer.
func (s ConsumeStatus) String() string {
	switch s {
	case ConsumeNoActiveCode:
		return "no_active_code"
	case ConsumeSuccess:
		return "success"
	case ConsumeDecremented:
		return "decremented"
	case ConsumeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ConsumeResult reports what TryConsumeOrDecrement did.
type ConsumeResult struct {
	Status ConsumeStatus
	// AttemptsLeft is the post-decrement count for ConsumeDecremented.
	AttemptsLeft int
}
