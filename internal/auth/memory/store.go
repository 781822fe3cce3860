// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides in-process implementations of the auth stores.
// They are safe for concurrent use within one process only and suit
// tests and single-instance development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
)

type codeKey struct {
	email   string
	purpose auth.Purpose
}

// CodeStore implements auth.CodeStore with a mutex-guarded map.
type CodeStore struct {
	mu    sync.Mutex
	codes map[codeKey]auth.AuthCode
}

// Compile-time interface check.
var _ auth.CodeStore = (*CodeStore)(nil)

// NewCodeStore creates an empty CodeStore.
func NewCodeStore() *CodeStore {
	return &CodeStore{codes: make(map[codeKey]auth.AuthCode)}
}

// PutActive replaces any record for the key.
func (s *CodeStore) PutActive(ctx context.Context, code *auth.AuthCode) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("AUTH_CODE_PUT_FAILED").Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[codeKey{code.Email, code.Purpose}] = *code
	return nil
}

// FetchActive returns a copy of the record for the key.
func (s *CodeStore) FetchActive(ctx context.Context, email string, purpose auth.Purpose) (*auth.AuthCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("AUTH_CODE_FETCH_FAILED").Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[codeKey{email, purpose}]
	if !ok {
		return nil, oops.Code("AUTH_CODE_NOT_FOUND").With("purpose", string(purpose)).Wrap(auth.ErrNotFound)
	}
	return &code, nil
}

// TryConsumeOrDecrement evaluates pred and applies the transition while
// holding the store lock.
func (s *CodeStore) TryConsumeOrDecrement(ctx context.Context, email string, purpose auth.Purpose, pred auth.ConsumePredicate) (auth.ConsumeResult, error) {
	if err := ctx.Err(); err != nil {
		return auth.ConsumeResult{}, oops.Code("AUTH_CODE_CONSUME_FAILED").Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := codeKey{email, purpose}
	code, ok := s.codes[key]
	if !ok {
		return auth.ConsumeResult{Status: auth.ConsumeNoActiveCode}, nil
	}

	switch status := pred.Evaluate(&code); status {
	case auth.ConsumeExpired, auth.ConsumeSuccess:
		delete(s.codes, key)
		return auth.ConsumeResult{Status: status}, nil
	default:
		code.AttemptsLeft--
		code.UpdatedAt = pred.Now
		if code.AttemptsLeft <= 0 {
			delete(s.codes, key)
		} else {
			s.codes[key] = code
		}
		return auth.ConsumeResult{Status: auth.ConsumeDecremented, AttemptsLeft: code.AttemptsLeft}, nil
	}
}

// DeleteExpired removes records whose deadline is at or before now.
func (s *CodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("AUTH_CODE_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, code := range s.codes {
		if code.IsExpiredAt(now) {
			delete(s.codes, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired or not.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// UserStore implements auth.UserStore with a mutex-guarded map.
type UserStore struct {
	mu      sync.RWMutex
	byEmail map[string]auth.User
}

// Compile-time interface check.
var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{byEmail: make(map[string]auth.User)}
}

// GetByEmail returns the user with the given email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return &user, nil
}

// Create stores user unless the email is taken.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return oops.Code("USER_EXISTS").Wrap(auth.ErrUserExists)
	}
	s.byEmail[user.Email] = *user
	return nil
}
