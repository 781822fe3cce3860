// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Auth code defaults.
const (
	DefaultCodeTTL     = 10 * time.Minute
	DefaultMaxAttempts = 5
)

// MaxEmailLength bounds the stored email column.
const MaxEmailLength = 254

// Purpose discriminates what an auth code may be used for. Records for
// different purposes never interfere with each other.
type Purpose string

// PurposeLogin is the sign-in flow.
const PurposeLogin Purpose = "login"

var purposeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// Validate checks the purpose tag is well formed.
func (p Purpose) Validate() error {
	if !purposeRegex.MatchString(string(p)) {
		return oops.Code("PURPOSE_INVALID").With("purpose", string(p)).Wrap(ErrInvalidPurpose)
	}
	return nil
}

// Channel is how a secret reaches the user.
type Channel string

// Delivery channels.
const (
	ChannelOTP       Channel = "otp"
	ChannelMagicLink Channel = "magic_link"
)

// Validate checks the channel is known.
func (c Channel) Validate() error {
	switch c {
	case ChannelOTP, ChannelMagicLink:
		return nil
	default:
		return oops.Code("CHANNEL_INVALID").With("channel", string(c)).Wrap(ErrInvalidChannel)
	}
}

// NormalizeEmail lower-cases and trims an address. Every store key uses
// the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare, normalized address.
func ValidateEmail(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return oops.Code("EMAIL_INVALID").With("length", len(email)).Wrap(ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code("EMAIL_INVALID").Wrap(ErrInvalidEmail)
	}
	return nil
}

// AuthCode is the stored state of one outstanding code. Exactly one of
// OTPHash and TokenHash is set; the plaintext is never stored.
type AuthCode struct {
	Email        string
	OTPHash      string
	TokenHash    string
	Purpose      Purpose
	ExpiresAt    time.Time
	AttemptsLeft int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAuthCode builds a validated record for a freshly issued secret.
func NewAuthCode(email string, purpose Purpose, channel Channel, digest string, now time.Time, ttl time.Duration, attempts int) (*AuthCode, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := purpose.Validate(); err != nil {
		return nil, err
	}
	if err := channel.Validate(); err != nil {
		return nil, err
	}
	if digest == "" {
		return nil, oops.Code("CODE_INVALID_HASH").Errorf("digest cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("CODE_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}
	if attempts <= 0 {
		return nil, oops.Code("CODE_INVALID_ATTEMPTS").With("attempts", attempts).Errorf("attempts must be positive")
	}

	code := &AuthCode{
		Email:        email,
		Purpose:      purpose,
		ExpiresAt:    now.Add(ttl),
		AttemptsLeft: attempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if channel == ChannelOTP {
		code.OTPHash = digest
	} else {
		code.TokenHash = digest
	}
	return code, nil
}

// Digest returns whichever hash is populated.
func (c *AuthCode) Digest() string {
	if c.OTPHash != "" {
		return c.OTPHash
	}
	return c.TokenHash
}

// Channel reports the delivery channel the record was issued for.
func (c *AuthCode) Channel() Channel {
	if c.OTPHash != "" {
		return ChannelOTP
	}
	return ChannelMagicLink
}

// IsExpiredAt reports whether the record is dead at t. A record is dead
// from its deadline onwards.
func (c *AuthCode) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}
