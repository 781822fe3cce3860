// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/auth/authtest"
	"github.com/holomush/passwordless/internal/auth/postgres"
	"github.com/holomush/passwordless/internal/store"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

// TestMain sets up a migrated PostgreSQL testcontainer.
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("passwordless_test"),
		tcpostgres.WithUsername("passwordless"),
		tcpostgres.WithPassword("passwordless"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic("failed to start postgres container: " + err.Error())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to get connection string: " + err.Error())
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create migrator: " + err.Error())
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		panic("failed to run migrations: " + err.Error())
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr, store.ConnectOptions{Attempts: 3, Backoff: 100 * time.Millisecond})
	if err != nil {
		_ = container.Terminate(ctx)
		panic("failed to create pool: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestCodeStore_Postgres(t *testing.T) {
	authtest.RunCodeStoreSuite(t, postgres.NewCodeStore(testPool))
}

func TestCodeStore_SingleHashConstraint(t *testing.T) {
	ctx := context.Background()
	code := authtest.NewCode(t, authtest.UniqueEmail("check"), auth.PurposeLogin, "1", time.Minute, 5)
	code.TokenHash = code.OTPHash

	err := postgres.NewCodeStore(testPool).PutActive(ctx, code)
	require.Error(t, err, "a record may carry only one hash")
}

func TestUserStore_Postgres(t *testing.T) {
	ctx := context.Background()
	users := postgres.NewUserStore(testPool)
	email := authtest.UniqueEmail("user")

	_, err := users.GetByEmail(ctx, email)
	require.ErrorIs(t, err, auth.ErrNotFound)

	user, err := auth.NewUser(email, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, user))

	got, err := users.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.WithinDuration(t, user.CreatedAt, got.CreatedAt, time.Microsecond)

	dup, err := auth.NewUser(email, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, users.Create(ctx, dup), auth.ErrUserExists)
}

func TestSessionIssuer_ConcurrentFirstLogin(t *testing.T) {
	ctx := context.Background()
	signer, err := auth.NewTokenSigner([]byte("integration-secret-that-is-long-enough"), auth.DefaultSessionIssuer, time.Hour)
	require.NoError(t, err)
	issuer, err := auth.NewSessionIssuer(postgres.NewUserStore(testPool), signer, auth.CookiePolicy{})
	require.NoError(t, err)

	email := authtest.UniqueEmail("first")
	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := issuer.IssueSession(ctx, email)
			errs[i] = err
			if err == nil {
				ids[i] = session.User.ID.String()
			}
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "every caller resolves the same user")
	}
}
