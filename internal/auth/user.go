// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is the identity a session is minted for. Profiles live elsewhere;
// this core only needs a stable id per normalized email.
type User struct {
	ID        ulid.ULID
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a user for a normalized, valid email.
func NewUser(email string, now time.Time) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	return &User{
		ID:        ulid.Make(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UserStore resolves identities by email.
type UserStore interface {
	// GetByEmail returns ErrNotFound when no user has the address.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Create stores a new user. Returns ErrUserExists if the email is taken.
	Create(ctx context.Context, user *User) error
}
