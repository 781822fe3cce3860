// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/config"
	"github.com/holomush/passwordless/internal/delivery"
	"github.com/holomush/passwordless/internal/observability"
	"github.com/holomush/passwordless/internal/store"
	"github.com/holomush/passwordless/internal/tls"
	"github.com/holomush/passwordless/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string

	// Setenv sets environment variables loaded from a dotenv file.
	// Default: os.Setenv
	Setenv func(key, value string) error

	// OpenBackends connects the stores selected by the configuration.
	// Default: openBackends
	OpenBackends func(ctx context.Context, cfg *config.Config, secrets config.Secrets) (*Backends, error)

	// OpenSender builds the delivery sender selected by the configuration.
	// Default: openSender
	OpenSender func(ctx context.Context, cfg *config.Config, secrets config.Secrets, logger *slog.Logger) (delivery.Sender, func(), error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, reg *prometheus.Registry, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// CertsDirGetter returns the development certificates directory.
	// Default: xdg.CertsDir
	CertsDirGetter func() (string, error)

	// TLSConfigEnsurer generates or loads development TLS certificates.
	// Default: tls.EnsureServerTLS
	TLSConfigEnsurer func(certsDir string, now time.Time, hosts ...string) (*cryptotls.Config, error)

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// HTTPClient queries the health endpoints for status.
	// Default: a client with a 5 second timeout
	HTTPClient *http.Client

	// LogWriter receives service logs.
	// Default: os.Stderr
	LogWriter io.Writer
}

func (d *Deps) setDefaults() {
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Setenv == nil {
		d.Setenv = func(key, value string) error {
			if _, set := os.LookupEnv(key); set {
				return nil
			}
			return os.Setenv(key, value)
		}
	}
	if d.OpenBackends == nil {
		d.OpenBackends = openBackends
	}
	if d.OpenSender == nil {
		d.OpenSender = openSender
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, reg *prometheus.Registry, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, reg, ready, logger)
		}
	}
	if d.CertsDirGetter == nil {
		d.CertsDirGetter = xdg.CertsDir
	}
	if d.TLSConfigEnsurer == nil {
		d.TLSConfigEnsurer = tls.EnsureServerTLS
	}
	if d.Listen == nil {
		d.Listen = net.Listen
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if d.LogWriter == nil {
		d.LogWriter = os.Stderr
	}
}

// Backends are the connected stores plus their health check.
type Backends struct {
	Codes auth.CodeStore
	Users auth.UserStore
	// Ready reports whether the stores answer.
	Ready observability.ReadinessChecker
	// Close releases connections.
	Close func()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
