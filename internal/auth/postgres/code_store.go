// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of the auth stores.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectCodeColumns = `email, purpose, otp_hash, token_hash, expires_at, attempts_left, created_at, updated_at`

// CodeStore implements auth.CodeStore using PostgreSQL.
//
// TryConsumeOrDecrement locks the row with SELECT ... FOR UPDATE and applies
// the transition in the same transaction, so concurrent verifications of
// one key are serialized by the row lock across all service instances.
type CodeStore struct {
	db DB
}

// Compile-time interface check.
var _ auth.CodeStore = (*CodeStore)(nil)

// NewCodeStore creates a new CodeStore.
func NewCodeStore(db DB) *CodeStore {
	return &CodeStore{db: db}
}

// PutActive upserts the record for (email, purpose).
func (s *CodeStore) PutActive(ctx context.Context, code *auth.AuthCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_codes (email, purpose, otp_hash, token_hash, expires_at, attempts_left, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email, purpose) DO UPDATE SET
			otp_hash = EXCLUDED.otp_hash,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			attempts_left = EXCLUDED.attempts_left,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, code.Email, string(code.Purpose), nullIfEmpty(code.OTPHash), nullIfEmpty(code.TokenHash),
		code.ExpiresAt, code.AttemptsLeft, code.CreatedAt, code.UpdatedAt)
	if err != nil {
		return oops.Code("AUTH_CODE_PUT_FAILED").
			With("operation", "upsert auth_code").
			With("purpose", string(code.Purpose)).
			Wrap(err)
	}
	return nil
}

// FetchActive returns the record for (email, purpose) regardless of expiry.
func (s *CodeStore) FetchActive(ctx context.Context, email string, purpose auth.Purpose) (*auth.AuthCode, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+selectCodeColumns+`
		FROM auth_codes
		WHERE email = $1 AND purpose = $2
	`, email, string(purpose))

	code, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("AUTH_CODE_NOT_FOUND").
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

// TryConsumeOrDecrement applies the predicate under a row lock.
func (s *CodeStore) TryConsumeOrDecrement(ctx context.Context, email string, purpose auth.Purpose, pred auth.ConsumePredicate) (auth.ConsumeResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return auth.ConsumeResult{}, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx, `
		SELECT `+selectCodeColumns+`
		FROM auth_codes
		WHERE email = $1 AND purpose = $2
		FOR UPDATE
	`, email, string(purpose))

	code, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.ConsumeResult{Status: auth.ConsumeNoActiveCode}, nil
	}
	if err != nil {
		return auth.ConsumeResult{}, err
	}

	result := auth.ConsumeResult{Status: pred.Evaluate(code)}
	if result.Status == auth.ConsumeDecremented {
		result.AttemptsLeft = code.AttemptsLeft - 1
	}

	if result.Status == auth.ConsumeDecremented && result.AttemptsLeft > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE auth_codes
			SET attempts_left = attempts_left - 1, updated_at = $3
			WHERE email = $1 AND purpose = $2
		`, email, string(purpose), pred.Now)
		if err != nil {
			return auth.ConsumeResult{}, oops.Code("AUTH_CODE_DECREMENT_FAILED").
				With("operation", "decrement attempts").
				With("purpose", string(purpose)).
				Wrap(err)
		}
	} else {
		_, err = tx.Exec(ctx, `
			DELETE FROM auth_codes WHERE email = $1 AND purpose = $2
		`, email, string(purpose))
		if err != nil {
			return auth.ConsumeResult{}, oops.Code("AUTH_CODE_DELETE_FAILED").
				With("operation", "delete auth_code").
				With("status", result.Status.String()).
				Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return auth.ConsumeResult{}, oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return result, nil
}

// DeleteExpired removes all records whose deadline is at or before now.
func (s *CodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
		DELETE FROM auth_codes WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("AUTH_CODE_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired auth_codes").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanCode scans a single row into an AuthCode.
// Callers are responsible for handling pgx.ErrNoRows.
func scanCode(row pgx.Row) (*auth.AuthCode, error) {
	var (
		code      auth.AuthCode
		purpose   string
		otpHash   *string
		tokenHash *string
	)

	err := row.Scan(&code.Email, &purpose, &otpHash, &tokenHash,
		&code.ExpiresAt, &code.AttemptsLeft, &code.CreatedAt, &code.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("AUTH_CODE_SCAN_FAILED").
			With("operation", "scan auth_code").
			Wrap(err)
	}

	code.Purpose = auth.Purpose(purpose)
	if otpHash != nil {
		code.OTPHash = *otpHash
	}
	if tokenHash != nil {
		code.TokenHash = *tokenHash
	}
	return &code, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
