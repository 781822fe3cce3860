// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/passwordless/internal/xdg"
)

// RegisterFlags adds a flag for every configuration key to fs. Flag names
// are the keys with underscores replaced by hyphens.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTPAddr, "HTTP API listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn or error)")
	fs.String("environment", d.Environment, "deployment environment")
	fs.String("store", d.Store, "code store backend (postgres, redis or memory)")
	fs.Duration("store-timeout", d.StoreTimeout, "timeout for each store call")
	fs.Duration("code-ttl", d.CodeTTL, "validity window of issued codes")
	fs.Int("max-attempts", d.MaxAttempts, "wrong guesses allowed per code")
	fs.Duration("session-ttl", d.SessionTTL, "validity window of session tokens")
	fs.String("session-issuer", d.SessionIssuer, "issuer claim of session tokens")
	fs.Bool("cookie-secure", d.CookieSecure, "mark the session cookie Secure")
	fs.Bool("cross-site", d.CrossSite, "send the session cookie with SameSite=None")
	fs.StringSlice("cors-origins", d.CORSOrigins, "allowed CORS origins")
	fs.StringSlice("allowed-emails", d.AllowedEmails, "glob patterns of addresses allowed to sign in")
	fs.Duration("sweep-interval", d.SweepInterval, "how often expired codes are purged")
	fs.String("delivery", d.Delivery, "delivery backend (log, mailersend or nats)")
	fs.String("public-url", d.PublicURL, "externally visible base URL used in magic links")
	fs.String("magic-link-redirect", d.MagicLinkRedirect, "where magic links redirect after sign in")
	fs.String("mail-from", d.MailFrom, "sender address for email delivery")
	fs.String("nats-url", d.NATSURL, "NATS server URL")
	fs.String("nats-subject", d.NATSSubject, "NATS subject for notifications")
	fs.Bool("tls-dev", d.TLSDev, "serve HTTPS with a generated self-signed certificate")
}

// DefaultPath returns the config file used when no path is given.
func DefaultPath() (string, error) {
	return xdg.ConfigFile()
}

// Load builds the configuration from defaults, the YAML file at path and
// flags. An empty path falls back to DefaultPath, which may be
// absent. An explicit path must exist.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			path = ""
		}
	}
	data, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(path) //nolint:gosec // operator-supplied path
}
