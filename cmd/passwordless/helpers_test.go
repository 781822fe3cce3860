// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/internal/auth/memory"
	"github.com/holomush/passwordless/internal/config"
	"github.com/holomush/passwordless/internal/delivery"
	"github.com/holomush/passwordless/internal/observability"
)

const testSessionSecret = "test-session-secret-0123456789abcdef"

// devArgs run against the in-memory stores with observability disabled.
var devArgs = []string{"--store", "memory", "--environment", "development", "--metrics-addr", ""}

type testEnv struct {
	deps      *Deps
	env       map[string]string
	codes     *memory.CodeStore
	users     *memory.UserStore
	sent      chan delivery.Message
	listeners chan net.Listener
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	te := &testEnv{
		env:       map[string]string{"SESSION_SECRET": testSessionSecret},
		codes:     memory.NewCodeStore(),
		users:     memory.NewUserStore(),
		sent:      make(chan delivery.Message, 10),
		listeners: make(chan net.Listener, 1),
	}
	te.deps = &Deps{
		Getenv: func(key string) string { return te.env[key] },
		Setenv: func(key, value string) error {
			te.env[key] = value
			return nil
		},
		OpenBackends: func(context.Context, *config.Config, config.Secrets) (*Backends, error) {
			return &Backends{
				Codes: te.codes,
				Users: te.users,
				Ready: func(context.Context) error { return nil },
				Close: func() {},
			}, nil
		},
		OpenSender: func(context.Context, *config.Config, config.Secrets, *slog.Logger) (delivery.Sender, func(), error) {
			return delivery.SenderFunc(func(_ context.Context, msg delivery.Message) error {
				te.sent <- msg
				return nil
			}), func() {}, nil
		},
		Listen: func(network, _ string) (net.Listener, error) {
			l, err := net.Listen(network, "127.0.0.1:0")
			if err == nil {
				te.listeners <- l
			}
			return l, err
		},
		LogWriter: io.Discard,
	}
	return te
}

// run executes the root command with args and returns its output.
func (te *testEnv) run(ctx context.Context, args ...string) (string, error) {
	cmd := NewRootCmd(te.deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type mockObservabilityServer struct {
	startErr error
	errCh    chan error
	started  bool
	stopped  bool
}

func (m *mockObservabilityServer) Start() (<-chan error, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = true
	if m.errCh == nil {
		m.errCh = make(chan error, 1)
	}
	return m.errCh, nil
}

func (m *mockObservabilityServer) Stop(context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockObservabilityServer) Addr() string {
	return "127.0.0.1:9100"
}

func (te *testEnv) withObservability(obs *mockObservabilityServer) {
	te.deps.ObservabilityServerFactory = func(string, *prometheus.Registry, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		return obs
	}
}
