// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hasher produces the stored digest of a one-time secret.
type Hasher interface {
	// Digest returns a deterministic, one-way digest of secret.
	Digest(secret string) string
}

// SHA256Hasher digests secrets with SHA-256 and encodes the result as
// lower-case hex. OTPs and magic-link tokens use the same digest.
type SHA256Hasher struct{}

// Verify SHA256Hasher implements Hasher.
var _ Hasher = SHA256Hasher{}

// Digest returns the 64-character hex SHA-256 of secret.
func (SHA256Hasher) Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DigestEqual compares two digests in constant time.
func DigestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
