// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"net"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/pkg/errutil"
)

func TestCodeStore_Keys(t *testing.T) {
	s := NewCodeStore(nil, "")
	assert.Equal(t, "passwordless:code:login:a@example.com", s.codeKey("a@example.com", auth.PurposeLogin))
	assert.Equal(t, "passwordless:code:expiry", s.expiryKey())

	custom := NewCodeStore(nil, "test:")
	assert.Equal(t, "test:code:login:a@example.com", custom.codeKey("a@example.com", auth.PurposeLogin))
}

// unreachableClient returns a client pointed at a port nothing listens on.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStores_AcceptClient(t *testing.T) {
	ctx := context.Background()
	client := unreachableClient(t)
	codes := NewCodeStore(client, "")
	users := NewUserStore(client, "")

	code, err := auth.NewAuthCode("a@example.com", auth.PurposeLogin, auth.ChannelOTP, "digest",
		time.UnixMilli(1767225000000), time.Minute, 5)
	require.NoError(t, err)

	t.Run("put surfaces connection errors", func(t *testing.T) {
		errutil.AssertErrorCode(t, codes.PutActive(ctx, code), "AUTH_CODE_PUT_FAILED")
	})

	t.Run("fetch surfaces connection errors", func(t *testing.T) {
		_, err := codes.FetchActive(ctx, "a@example.com", auth.PurposeLogin)
		errutil.AssertErrorCode(t, err, "AUTH_CODE_FETCH_FAILED")
	})

	t.Run("consume surfaces connection errors", func(t *testing.T) {
		_, err := codes.TryConsumeOrDecrement(ctx, "a@example.com", auth.PurposeLogin,
			auth.ConsumePredicate{Digest: "digest", Now: time.UnixMilli(1767225001000)})
		errutil.AssertErrorCode(t, err, "AUTH_CODE_CONSUME_FAILED")
	})

	t.Run("sweep surfaces connection errors", func(t *testing.T) {
		n, err := codes.DeleteExpired(ctx, time.UnixMilli(1767225600000))
		errutil.AssertErrorCode(t, err, "AUTH_CODE_DELETE_EXPIRED_FAILED")
		assert.Zero(t, n)
	})

	t.Run("user lookup surfaces connection errors", func(t *testing.T) {
		_, err := users.GetByEmail(ctx, "a@example.com")
		errutil.AssertErrorCode(t, err, "USER_QUERY_FAILED")
	})
}

func TestDecodeCode(t *testing.T) {
	expires := time.UnixMilli(1767225600000)

	t.Run("decodes a magic link record", func(t *testing.T) {
		code, err := decodeCode("a@example.com", auth.PurposeLogin, map[string]string{
			fieldTokenHash:    "abc",
			fieldExpiresAt:    "1767225600000",
			fieldAttemptsLeft: "3",
			fieldCreatedAt:    "1767225000000",
			fieldUpdatedAt:    "1767225000000",
		})
		require.NoError(t, err)
		assert.Equal(t, "abc", code.TokenHash)
		assert.Equal(t, auth.ChannelMagicLink, code.Channel())
		assert.Equal(t, 3, code.AttemptsLeft)
		assert.True(t, code.ExpiresAt.Equal(expires))
	})

	t.Run("rejects corrupt numbers", func(t *testing.T) {
		_, err := decodeCode("a@example.com", auth.PurposeLogin, map[string]string{
			fieldOTPHash:      "abc",
			fieldExpiresAt:    "soon",
			fieldAttemptsLeft: "3",
			fieldCreatedAt:    "1",
			fieldUpdatedAt:    "1",
		})
		errutil.AssertErrorCode(t, err, "AUTH_CODE_DECODE_FAILED")
	})
}
