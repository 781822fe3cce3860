// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/passwordless/internal/config"
	"github.com/holomush/passwordless/internal/httpapi"
	"github.com/holomush/passwordless/internal/logging"
	"github.com/holomush/passwordless/internal/observability"
	"github.com/holomush/passwordless/pkg/errutil"
)

// shutdownTimeout bounds graceful shutdown of each server.
const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the auth endpoints, the metrics and health endpoints and the
background sweeper until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, g, deps)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// loadConfig reads the configuration and the secrets it requires.
func loadConfig(cmd *cobra.Command, g *globalFlags, deps *Deps) (*config.Config, config.Secrets, error) {
	cfg, err := config.Load(cmd.Flags(), g.configFile)
	if err != nil {
		return nil, config.Secrets{}, err
	}
	secrets := config.SecretsFromEnv(deps.Getenv)
	if err := secrets.Validate(cfg); err != nil {
		return nil, config.Secrets{}, err
	}
	return cfg, secrets, nil
}

func setupLogger(cfg *config.Config, deps *Deps) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "passwordless",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  deps.LogWriter,
	})
}

func runServe(ctx context.Context, cmd *cobra.Command, g *globalFlags, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, secrets, err := loadConfig(cmd, g, deps)
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.InfoContext(ctx, "starting passwordless",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"delivery", cfg.Delivery,
		"environment", cfg.Environment,
	)

	backends, err := deps.OpenBackends(ctx, cfg, secrets)
	if err != nil {
		return oops.Code("SERVE_BACKENDS_FAILED").With("store", cfg.Store).Wrap(err)
	}
	defer backends.Close()

	sender, closeSender, err := deps.OpenSender(ctx, cfg, secrets, logger)
	if err != nil {
		return oops.Code("SERVE_DELIVERY_FAILED").With("delivery", cfg.Delivery).Wrap(err)
	}
	defer closeSender()

	registry := observability.NewRegistry()
	svc, err := buildServices(cfg, secrets, backends, registry, logger)
	if err != nil {
		return err
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Issuer:            svc.issuer,
		Verifier:          svc.verifier,
		Sessions:          svc.sessions,
		Sender:            sender,
		PublicURL:         cfg.PublicURL,
		MagicLinkRedirect: cfg.MagicLinkRedirect,
		CORSOrigins:       cfg.CORSOrigins,
		Metrics:           observability.NewHTTPMetrics(registry),
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	if cfg.TLSDev {
		tlsConfig, err := devTLSConfig(cfg, deps)
		if err != nil {
			_ = listener.Close() //nolint:errcheck // setup error takes precedence
			return err
		}
		listener = cryptotls.NewListener(listener, tlsConfig)
	}

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, registry, backends.Ready, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			_ = listener.Close() //nolint:errcheck // setup error takes precedence
			return oops.Code("SERVE_OBSERVABILITY_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.sweeper.Run(ctx)
	}()

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErrCh := make(chan error, 1)
	go func() {
		defer close(serveErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()

	cmd.Println("passwordless listening on", listener.Addr().String())
	logger.InfoContext(ctx, "http api ready", "addr", listener.Addr().String(), "tls_dev", cfg.TLSDev)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr := <-serveErrCh:
		runErr = oops.Code("SERVE_HTTP_FAILED").Wrap(serveErr)
		errutil.LogError(logger, "http server failed", runErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return runErr
}

// devTLSConfig loads or generates the self-signed certificate, valid for
// the public URL host.
func devTLSConfig(cfg *config.Config, deps *Deps) (*cryptotls.Config, error) {
	certsDir, err := deps.CertsDirGetter()
	if err != nil {
		return nil, oops.Code("SERVE_TLS_FAILED").With("operation", "locate certs directory").Wrap(err)
	}
	var hosts []string
	if u, err := url.Parse(cfg.PublicURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	tlsConfig, err := deps.TLSConfigEnsurer(certsDir, time.Now(), hosts...)
	if err != nil {
		return nil, oops.Code("SERVE_TLS_FAILED").With("certs_dir", certsDir).Wrap(err)
	}
	return tlsConfig, nil
}

// monitorServerErrors cancels ctx when a server reports a failure. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
