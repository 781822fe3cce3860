// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/auth/authtest"
	"github.com/holomush/passwordless/internal/auth/redis"
	"github.com/holomush/passwordless/pkg/errutil"
)

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)
	return endpoint
}

func TestCodeStore_Redis(t *testing.T) {
	ctx := context.Background()
	url := startRedis(ctx, t)

	client, err := redis.Connect(ctx, url, 3, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewCodeStore(client, "it:")
	authtest.RunCodeStoreSuite(t, store)

	t.Run("sweep clears the expiry index", func(t *testing.T) {
		email := authtest.UniqueEmail("index")
		require.NoError(t, store.PutActive(ctx, authtest.NewCode(t, email, auth.PurposeLogin, "1", time.Second, 5)))

		_, err := store.DeleteExpired(ctx, authtest.Epoch.Add(24*time.Hour))
		require.NoError(t, err)

		n, err := client.ZCard(ctx, "it:code:expiry").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestUserStore_Redis(t *testing.T) {
	ctx := context.Background()
	url := startRedis(ctx, t)

	client, err := redis.Connect(ctx, url, 3, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewUserStore(client, "it:")
	email := authtest.UniqueEmail("user")
	user, err := auth.NewUser(email, authtest.Epoch)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, user))
	require.ErrorIs(t, store.Create(ctx, user), auth.ErrUserExists)

	got, err := store.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.GetByEmail(ctx, authtest.UniqueEmail("missing"))
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := redis.Connect(context.Background(), "redis://127.0.0.1:1/0", 2, 10*time.Millisecond)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
}
