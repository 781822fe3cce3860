// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Failure kinds surfaced as server errors. Callers branch on these with
// errors.Is; the oops code attached at the wrap site carries the detail.
var (
	// ErrPersistence indicates the backing store was unavailable or timed out.
	ErrPersistence = errors.New("persistence failure")

	// ErrRandomness indicates the secure random source could not produce bytes.
	ErrRandomness = errors.New("secure random source unavailable")
)

// Input validation errors.
var (
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrInvalidPurpose = errors.New("invalid purpose")
	ErrInvalidChannel = errors.New("invalid delivery channel")
)

// ErrEmailNotAllowed is returned by CodeIssuer when the email policy rejects
// an address. HTTP callers must not reveal it to the client.
var ErrEmailNotAllowed = errors.New("email address not allowed")

// ErrUserExists is returned by UserStore.Create when the email is taken.
var ErrUserExists = errors.New("user already exists")

// PublicVerifyMessage is the only failure text shown to end users for any
// verification outcome other than success.
const PublicVerifyMessage = "invalid or expired code"

// persistenceError tags a store error as a PersistenceFailure while keeping
// the cause in the chain.
func persistenceError(operation string, err error) error {
	return oops.Code("CODE_STORE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrPersistence, err))
}
