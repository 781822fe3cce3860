// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest holds a behavioural suite every auth.CodeStore must pass.
package authtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth"
)

// Epoch is the fixed instant records in the suite are issued at.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var hasher = auth.SHA256Hasher{}

// UniqueEmail returns an address no other test uses, so suites can share
// one backing database.
func UniqueEmail(label string) string {
	return fmt.Sprintf("%s-%s@example.com", label, ulid.Make().String())
}

// NewCode builds a code for email issued at Epoch.
func NewCode(t *testing.T, email string, purpose auth.Purpose, secret string, ttl time.Duration, attempts int) *auth.AuthCode {
	t.Helper()
	code, err := auth.NewAuthCode(email, purpose, auth.ChannelOTP, hasher.Digest(secret), Epoch, ttl, attempts)
	require.NoError(t, err)
	return code
}

func consume(ctx context.Context, t *testing.T, store auth.CodeStore, email string, purpose auth.Purpose, secret string, at time.Time) auth.ConsumeResult {
	t.Helper()
	res, err := store.TryConsumeOrDecrement(ctx, email, purpose, auth.ConsumePredicate{
		Digest: hasher.Digest(secret),
		Now:    at,
	})
	require.NoError(t, err)
	return res
}

// RunCodeStoreSuite exercises the CodeStore contract against store.
func RunCodeStoreSuite(t *testing.T, store auth.CodeStore) {
	t.Helper()
	ctx := context.Background()
	during := Epoch.Add(time.Minute)

	t.Run("fetch of missing key returns ErrNotFound", func(t *testing.T) {
		_, err := store.FetchActive(ctx, UniqueEmail("missing"), auth.PurposeLogin)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("put then fetch round trips", func(t *testing.T) {
		email := UniqueEmail("roundtrip")
		want := NewCode(t, email, auth.PurposeLogin, "123456", 10*time.Minute, 5)
		require.NoError(t, store.PutActive(ctx, want))

		got, err := store.FetchActive(ctx, email, auth.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, want.Email, got.Email)
		assert.Equal(t, want.Purpose, got.Purpose)
		assert.Equal(t, want.OTPHash, got.OTPHash)
		assert.Empty(t, got.TokenHash)
		assert.Equal(t, 5, got.AttemptsLeft)
		assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Millisecond)
	})

	t.Run("put supersedes the previous code and resets attempts", func(t *testing.T) {
		email := UniqueEmail("supersede")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "111111", 10*time.Minute, 5)))
		res := consume(ctx, t, store, email, auth.PurposeLogin, "000000", during)
		require.Equal(t, auth.ConsumeDecremented, res.Status)

		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "222222", 10*time.Minute, 5)))

		got, err := store.FetchActive(ctx, email, auth.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, 5, got.AttemptsLeft)

		res = consume(ctx, t, store, email, auth.PurposeLogin, "111111", during)
		assert.Equal(t, auth.ConsumeDecremented, res.Status, "old secret must not verify")
		res = consume(ctx, t, store, email, auth.PurposeLogin, "222222", during)
		assert.Equal(t, auth.ConsumeSuccess, res.Status)
	})

	t.Run("consume of missing key reports no active code", func(t *testing.T) {
		res := consume(ctx, t, store, UniqueEmail("none"), auth.PurposeLogin, "123456", during)
		assert.Equal(t, auth.ConsumeNoActiveCode, res.Status)
	})

	t.Run("matching digest consumes exactly once", func(t *testing.T) {
		email := UniqueEmail("once")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "654321", 10*time.Minute, 5)))

		res := consume(ctx, t, store, email, auth.PurposeLogin, "654321", during)
		assert.Equal(t, auth.ConsumeSuccess, res.Status)

		_, err := store.FetchActive(ctx, email, auth.PurposeLogin)
		require.ErrorIs(t, err, auth.ErrNotFound)

		res = consume(ctx, t, store, email, auth.PurposeLogin, "654321", during)
		assert.Equal(t, auth.ConsumeNoActiveCode, res.Status)
	})

	t.Run("wrong digest decrements until the record is gone", func(t *testing.T) {
		email := UniqueEmail("exhaust")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "999999", 10*time.Minute, 2)))

		res := consume(ctx, t, store, email, auth.PurposeLogin, "000000", during)
		assert.Equal(t, auth.ConsumeResult{Status: auth.ConsumeDecremented, AttemptsLeft: 1}, res)

		got, err := store.FetchActive(ctx, email, auth.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttemptsLeft)

		res = consume(ctx, t, store, email, auth.PurposeLogin, "000000", during)
		assert.Equal(t, auth.ConsumeResult{Status: auth.ConsumeDecremented, AttemptsLeft: 0}, res)

		_, err = store.FetchActive(ctx, email, auth.PurposeLogin)
		require.ErrorIs(t, err, auth.ErrNotFound)

		res = consume(ctx, t, store, email, auth.PurposeLogin, "999999", during)
		assert.Equal(t, auth.ConsumeNoActiveCode, res.Status, "correct code after exhaustion")
	})

	t.Run("expired record is deleted even with the right digest", func(t *testing.T) {
		email := UniqueEmail("expired")
		code := NewCode(t, email, auth.PurposeLogin, "424242", time.Minute, 5)
		require.NoError(t, store.PutActive(ctx, code))

		res := consume(ctx, t, store, email, auth.PurposeLogin, "424242", code.ExpiresAt)
		assert.Equal(t, auth.ConsumeExpired, res.Status)

		_, err := store.FetchActive(ctx, email, auth.PurposeLogin)
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("purposes are isolated", func(t *testing.T) {
		email := UniqueEmail("purpose")
		other := auth.Purpose("email_change")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "100000", 10*time.Minute, 5)))
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, other, "200000", 10*time.Minute, 5)))

		res := consume(ctx, t, store, email, other, "100000", during)
		assert.Equal(t, auth.ConsumeDecremented, res.Status)

		res = consume(ctx, t, store, email, auth.PurposeLogin, "100000", during)
		assert.Equal(t, auth.ConsumeSuccess, res.Status)

		got, err := store.FetchActive(ctx, email, other)
		require.NoError(t, err)
		assert.Equal(t, 4, got.AttemptsLeft)
	})

	t.Run("delete expired removes only dead records", func(t *testing.T) {
		dead := UniqueEmail("dead")
		live := UniqueEmail("live")
		require.NoError(t, store.PutActive(ctx, NewCode(t, dead, auth.PurposeLogin, "111111", time.Minute, 5)))
		require.NoError(t, store.PutActive(ctx, NewCode(t, live, auth.PurposeLogin, "222222", time.Hour, 5)))

		n, err := store.DeleteExpired(ctx, Epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = store.FetchActive(ctx, dead, auth.PurposeLogin)
		require.ErrorIs(t, err, auth.ErrNotFound)
		_, err = store.FetchActive(ctx, live, auth.PurposeLogin)
		require.NoError(t, err)
	})

	t.Run("concurrent correct submissions succeed exactly once", func(t *testing.T) {
		email := UniqueEmail("race")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "777777", 10*time.Minute, 5)))

		statuses := raceConsume(ctx, t, store, email, "777777", 16, during)

		counts := make(map[auth.ConsumeStatus]int)
		for _, res := range statuses {
			counts[res.Status]++
		}
		assert.Equal(t, 1, counts[auth.ConsumeSuccess])
		assert.Equal(t, 15, counts[auth.ConsumeNoActiveCode])
	})

	t.Run("concurrent wrong submissions never over-decrement", func(t *testing.T) {
		email := UniqueEmail("burst")
		require.NoError(t, store.PutActive(ctx, NewCode(t, email, auth.PurposeLogin, "777777", 10*time.Minute, 5)))

		statuses := raceConsume(ctx, t, store, email, "000000", 12, during)

		var left []int
		noActive := 0
		for _, res := range statuses {
			switch res.Status {
			case auth.ConsumeDecremented:
				left = append(left, res.AttemptsLeft)
			case auth.ConsumeNoActiveCode:
				noActive++
			default:
				t.Fatalf("unexpected status %s", res.Status)
			}
		}
		sort.Ints(left)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, left)
		assert.Equal(t, 7, noActive)
	})
}

func raceConsume(ctx context.Context, t *testing.T, store auth.CodeStore, email, secret string, n int, at time.Time) []auth.ConsumeResult {
	t.Helper()
	pred := auth.ConsumePredicate{Digest: hasher.Digest(secret), Now: at}

	results := make([]auth.ConsumeResult, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = store.TryConsumeOrDecrement(ctx, email, auth.PurposeLogin, pred)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	return results
}
