// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/auth/memory"
	authpg "github.com/holomush/passwordless/internal/auth/postgres"
	authredis "github.com/holomush/passwordless/internal/auth/redis"
	"github.com/holomush/passwordless/internal/config"
	"github.com/holomush/passwordless/internal/delivery"
	"github.com/holomush/passwordless/internal/store"
)

// Connection retry for backing services at startup.
const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Delivery retry for transient provider failures.
const (
	deliveryAttempts = 3
	deliveryBackoff  = 200 * time.Millisecond
)

// openBackends connects the stores for cfg.Store. With the redis store,
// users live in PostgreSQL when DATABASE_URL is set and in Redis otherwise.
func openBackends(ctx context.Context, cfg *config.Config, secrets config.Secrets) (*Backends, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &Backends{
			Codes: memory.NewCodeStore(),
			Users: memory.NewUserStore(),
			Ready: func(context.Context) error { return nil },
			Close: func() {},
		}, nil

	case config.StorePostgres:
		pool, err := store.Connect(ctx, secrets.DatabaseURL, store.ConnectOptions{Attempts: connectAttempts, Backoff: connectBackoff})
		if err != nil {
			return nil, err
		}
		return &Backends{
			Codes: authpg.NewCodeStore(pool),
			Users: authpg.NewUserStore(pool),
			Ready: pool.Ping,
			Close: pool.Close,
		}, nil

	case config.StoreRedis:
		client, err := authredis.Connect(ctx, secrets.RedisURL, connectAttempts, connectBackoff)
		if err != nil {
			return nil, err
		}
		b := &Backends{
			Codes: authredis.NewCodeStore(client, authredis.DefaultKeyPrefix),
			Users: authredis.NewUserStore(client, authredis.DefaultKeyPrefix),
			Ready: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			Close: func() { _ = client.Close() }, //nolint:errcheck // shutdown
		}
		if secrets.DatabaseURL == "" {
			return b, nil
		}
		pool, err := store.Connect(ctx, secrets.DatabaseURL, store.ConnectOptions{Attempts: connectAttempts, Backoff: connectBackoff})
		if err != nil {
			b.Close()
			return nil, err
		}
		redisReady, redisClose := b.Ready, b.Close
		b.Users = authpg.NewUserStore(pool)
		b.Ready = func(ctx context.Context) error {
			if err := redisReady(ctx); err != nil {
				return err
			}
			return pool.Ping(ctx)
		}
		b.Close = func() {
			pool.Close()
			redisClose()
		}
		return b, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store").With("value", cfg.Store).Errorf("unknown store")
	}
}

// openSender builds the sender for cfg.Delivery. Network senders are
// wrapped with retries. The returned func releases connections.
func openSender(ctx context.Context, cfg *config.Config, secrets config.Secrets, logger *slog.Logger) (delivery.Sender, func(), error) {
	switch cfg.Delivery {
	case config.DeliveryLog:
		return delivery.NewLogSender(logger, !cfg.IsProduction()), func() {}, nil

	case config.DeliveryMailerSend:
		sender, err := delivery.NewMailerSendSender(secrets.MailerSendAPIKey, cfg.SessionIssuer, cfg.MailFrom)
		if err != nil {
			return nil, nil, err
		}
		return delivery.NewRetrying(sender, deliveryAttempts, deliveryBackoff, logger), func() {}, nil

	case config.DeliveryNATS:
		conn, err := delivery.ConnectNATS(ctx, cfg.NATSURL, connectAttempts, connectBackoff)
		if err != nil {
			return nil, nil, err
		}
		sender := delivery.NewNATSSender(conn, cfg.NATSSubject)
		closeFn := func() {
			if err := conn.Drain(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}
		return delivery.NewRetrying(sender, deliveryAttempts, deliveryBackoff, logger), closeFn, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "delivery").With("value", cfg.Delivery).Errorf("unknown delivery backend")
	}
}

// services are the auth components built over a set of backends.
type services struct {
	issuer   *auth.CodeIssuer
	verifier *auth.Verifier
	sessions *auth.SessionIssuer
	sweeper  *auth.Sweeper
}

// buildServices wires the auth services for cfg. reg receives the auth
// metrics; it may be nil for one-shot commands.
func buildServices(cfg *config.Config, secrets config.Secrets, b *Backends, reg prometheus.Registerer, logger *slog.Logger) (*services, error) {
	var metrics *auth.Metrics
	if reg != nil {
		metrics = auth.NewMetrics(reg)
	}

	policy, err := auth.NewEmailPolicy(cfg.AllowedEmails)
	if err != nil {
		return nil, err
	}
	hasher := auth.SHA256Hasher{}

	issuer, err := auth.NewCodeIssuer(b.Codes, hasher,
		auth.WithCodeTTL(cfg.CodeTTL),
		auth.WithMaxAttempts(cfg.MaxAttempts),
		auth.WithEmailPolicy(policy),
		auth.WithIssuerStoreTimeout(cfg.StoreTimeout),
		auth.WithIssuerMetrics(metrics),
		auth.WithIssuerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(b.Codes, hasher,
		auth.WithVerifierStoreTimeout(cfg.StoreTimeout),
		auth.WithVerifierMetrics(metrics),
		auth.WithVerifierLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewTokenSigner([]byte(secrets.SessionSecret), cfg.SessionIssuer, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionIssuer(b.Users, signer, auth.CookiePolicy{
		Secure:    cfg.CookieSecure,
		CrossSite: cfg.CrossSite,
	}, auth.WithSessionMetrics(metrics),
		auth.WithSessionLogger(logger),
		auth.WithSessionStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, err
	}

	sweeper, err := auth.NewSweeper(b.Codes,
		auth.WithSweepInterval(cfg.SweepInterval),
		auth.WithSweeperMetrics(metrics),
		auth.WithSweeperLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	return &services{issuer: issuer, verifier: verifier, sessions: sessions, sweeper: sweeper}, nil
}
