// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/samber/oops"
)

// Secret sizes.
const (
	OTPDigits       = 6
	MagicTokenBytes = 32 // 32 bytes = 64 hex chars
)

var otpBound = big.NewInt(1_000_000)

// GenerateSecret draws a plaintext secret for channel from r, which must be
// a cryptographically secure source. OTPs are uniform over 000000-999999.
func GenerateSecret(r io.Reader, channel Channel) (string, error) {
	switch channel {
	case ChannelOTP:
		n, err := rand.Int(r, otpBound)
		if err != nil {
			return "", oops.Code("RANDOMNESS_FAILURE").
				With("operation", "generate otp").
				Wrap(fmt.Errorf("%w: %w", ErrRandomness, err))
		}
		return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
	case ChannelMagicLink:
		buf := make([]byte, MagicTokenBytes)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", oops.Code("RANDOMNESS_FAILURE").
				With("operation", "generate magic token").
				With("requested_bytes", MagicTokenBytes).
				Wrap(fmt.Errorf("%w: %w", ErrRandomness, err))
		}
		return hex.EncodeToString(buf), nil
	default:
		return "", channel.Validate()
	}
}
