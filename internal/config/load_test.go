// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/passwordless/pkg/errutil"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.HTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, d.Store, cfg.Store)
	assert.Equal(t, d.CodeTTL, cfg.CodeTTL)
	assert.Equal(t, d.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, d.SessionTTL, cfg.SessionTTL)
	assert.Equal(t, d.CookieSecure, cfg.CookieSecure)
	assert.Empty(t, cfg.AllowedEmails)
}

func TestLoad_ImplicitFileFromConfigHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	dir := filepath.Join(home, "passwordless")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("max_attempts: 3\n"), 0o600))

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoad_FileThenFlags(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfig(t, `
environment: development
store: memory
code_ttl: 5m
max_attempts: 3
log_format: text
allowed_emails:
  - "*@example.com"
`)

	cfg, err := Load(newFlags(t, "--max-attempts=7", "--http-addr=:9090"), path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 5*time.Minute, cfg.CodeTTL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"*@example.com"}, cfg.AllowedEmails)
	assert.Equal(t, 7, cfg.MaxAttempts, "changed flags override the file")
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, Default().SessionTTL, cfg.SessionTTL, "untouched keys keep defaults")
}

func TestLoad_UnchangedFlagsDoNotOverrideFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfig(t, "max_attempts: 3\n")

	cfg, err := Load(newFlags(t), path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestLoad_NilFlags(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfig(t, "session_issuer: example\n")

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "example", cfg.SessionIssuer)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	tests := []struct {
		name string
		path func(t *testing.T) string
		args []string
		code string
	}{
		{
			name: "explicit missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			code: "CONFIG_FILE_UNREADABLE",
		},
		{
			name: "unknown key",
			path: func(t *testing.T) string { return writeConfig(t, "listen: :80\n") },
			code: "CONFIG_SCHEMA_VIOLATION",
		},
		{
			name: "malformed duration",
			path: func(t *testing.T) string { return writeConfig(t, "code_ttl: soon\n") },
			code: "CONFIG_SCHEMA_VIOLATION",
		},
		{
			name: "broken yaml",
			path: func(t *testing.T) string { return writeConfig(t, "store: [postgres\n") },
			code: "CONFIG_YAML_INVALID",
		},
		{
			name: "semantic violation",
			path: func(t *testing.T) string { return writeConfig(t, "store: memory\n") },
			code: "CONFIG_INVALID",
		},
		{
			name: "flag violation",
			path: func(*testing.T) string { return "" },
			args: []string{"--max-attempts=0"},
			code: "CONFIG_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlags(t, tt.args...), tt.path(t))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}
