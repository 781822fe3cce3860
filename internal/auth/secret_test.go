// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"crypto/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/pkg/errutil"
)

var (
	otpPattern   = regexp.MustCompile(`^[0-9]{6}$`)
	tokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func TestGenerateSecret(t *testing.T) {
	t.Run("otp is six digits", func(t *testing.T) {
		for range 50 {
			secret, err := auth.GenerateSecret(rand.Reader, auth.ChannelOTP)
			require.NoError(t, err)
			assert.Regexp(t, otpPattern, secret)
		}
	})

	t.Run("otp keeps leading zeros", func(t *testing.T) {
		secret, err := auth.GenerateSecret(bytes.NewReader(make([]byte, 64)), auth.ChannelOTP)
		require.NoError(t, err)
		assert.Equal(t, "000000", secret)
	})

	t.Run("magic token is 64 hex chars", func(t *testing.T) {
		secret, err := auth.GenerateSecret(rand.Reader, auth.ChannelMagicLink)
		require.NoError(t, err)
		assert.Regexp(t, tokenPattern, secret)
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := auth.GenerateSecret(rand.Reader, auth.Channel("sms"))
		require.ErrorIs(t, err, auth.ErrInvalidChannel)
	})
}

func TestGenerateSecret_RandomnessFailure(t *testing.T) {
	for _, ch := range []auth.Channel{auth.ChannelOTP, auth.ChannelMagicLink} {
		t.Run(string(ch), func(t *testing.T) {
			_, err := auth.GenerateSecret(strings.NewReader(""), ch)
			errutil.AssertErrorCodeIs(t, err, "RANDOMNESS_FAILURE", auth.ErrRandomness)
		})
	}
}
