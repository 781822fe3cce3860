// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/auth/authtest"
	"github.com/holomush/passwordless/internal/auth/memory"
	"github.com/holomush/passwordless/pkg/errutil"
)

func TestCodeStore_Contract(t *testing.T) {
	authtest.RunCodeStoreSuite(t, memory.NewCodeStore())
}

func TestCodeStore_FetchReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCodeStore()
	email := authtest.UniqueEmail("copy")
	require.NoError(t, store.PutActive(ctx, authtest.NewCode(t, email, auth.PurposeLogin, "123456", time.Minute, 5)))

	got, err := store.FetchActive(ctx, email, auth.PurposeLogin)
	require.NoError(t, err)
	got.AttemptsLeft = 99

	again, err := store.FetchActive(ctx, email, auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 5, again.AttemptsLeft)
}

func TestCodeStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := memory.NewCodeStore()

	_, err := store.TryConsumeOrDecrement(ctx, "a@example.com", auth.PurposeLogin, auth.ConsumePredicate{})
	errutil.AssertErrorCode(t, err, "AUTH_CODE_CONSUME_FAILED")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCodeStore_Len(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCodeStore()
	require.NoError(t, store.PutActive(ctx, authtest.NewCode(t, "a@example.com", auth.PurposeLogin, "1", time.Minute, 5)))
	require.NoError(t, store.PutActive(ctx, authtest.NewCode(t, "a@example.com", auth.PurposeLogin, "2", time.Minute, 5)))
	assert.Equal(t, 1, store.Len())
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()

	_, err := store.GetByEmail(ctx, "new@example.com")
	require.ErrorIs(t, err, auth.ErrNotFound)

	user, err := auth.NewUser("new@example.com", authtest.Epoch)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, user))

	got, err := store.GetByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	dup, err := auth.NewUser("new@example.com", authtest.Epoch)
	require.NoError(t, err)
	err = store.Create(ctx, dup)
	errutil.AssertErrorCodeIs(t, err, "USER_EXISTS", auth.ErrUserExists)
}
