// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements passwordless authentication: one-time codes,
// magic-link tokens and the stateless sessions they unlock.
//
// # Domain Types
//
// AuthCode records should be created with NewAuthCode and users with
// NewUser. Direct struct initialization bypasses validation.
// Store implementations receive pre-validated records.
//
// # Services
//
// Service types coordinate the code lifecycle:
//   - CodeIssuer - generates a secret and supersedes any earlier code
//   - Verifier - consumes or decrements the active code atomically
//   - SessionIssuer - resolves the user and mints a signed session token
//   - Sweeper - purges expired codes in the background
//
// # Stores
//
// CodeStore implementations live in subpackages (postgres, redis, memory).
// All serialization happens inside the store's atomic primitive; none of
// the services hold locks.
package auth
