// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads and validates the service configuration.
//
// Non-secret settings come from defaults, an optional YAML file and command
// line flags, in increasing precedence. Secrets come only from the
// environment.
package config

import (
	"net/url"
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/logging"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Delivery backends.
const (
	DeliveryLog        = "log"
	DeliveryMailerSend = "mailersend"
	DeliveryNATS       = "nats"
)

// EnvironmentProduction disables development conveniences.
const EnvironmentProduction = "production"

// Config is the non-secret service configuration.
type Config struct {
	HTTPAddr    string `koanf:"http_addr" json:"http_addr,omitempty" jsonschema:"description=HTTP API listen address"`
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=metrics and health listen address; empty disables"`
	LogFormat   string `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel    string `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Environment string `koanf:"environment" json:"environment,omitempty" jsonschema:"description=deployment environment; anything but production enables development behaviour"`

	Store        string        `koanf:"store" json:"store,omitempty" jsonschema:"enum=postgres,enum=redis,enum=memory"`
	StoreTimeout time.Duration `koanf:"store_timeout" json:"store_timeout,omitempty"`

	CodeTTL       time.Duration `koanf:"code_ttl" json:"code_ttl,omitempty"`
	MaxAttempts   int           `koanf:"max_attempts" json:"max_attempts,omitempty" jsonschema:"minimum=1"`
	SessionTTL    time.Duration `koanf:"session_ttl" json:"session_ttl,omitempty"`
	SessionIssuer string        `koanf:"session_issuer" json:"session_issuer,omitempty"`
	CookieSecure  bool          `koanf:"cookie_secure" json:"cookie_secure,omitempty"`
	CrossSite     bool          `koanf:"cross_site" json:"cross_site,omitempty" jsonschema:"description=send the session cookie with SameSite=None (requires cookie_secure)"`
	CORSOrigins   []string      `koanf:"cors_origins" json:"cors_origins,omitempty"`
	AllowedEmails []string      `koanf:"allowed_emails" json:"allowed_emails,omitempty" jsonschema:"description=glob patterns of addresses allowed to request codes; empty allows all"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval,omitempty"`

	Delivery          string `koanf:"delivery" json:"delivery,omitempty" jsonschema:"enum=log,enum=mailersend,enum=nats"`
	PublicURL         string `koanf:"public_url" json:"public_url,omitempty" jsonschema:"format=uri"`
	MagicLinkRedirect string `koanf:"magic_link_redirect" json:"magic_link_redirect,omitempty"`
	MailFrom          string `koanf:"mail_from" json:"mail_from,omitempty"`
	NATSURL           string `koanf:"nats_url" json:"nats_url,omitempty"`
	NATSSubject       string `koanf:"nats_subject" json:"nats_subject,omitempty"`

	TLSDev bool `koanf:"tls_dev" json:"tls_dev,omitempty" jsonschema:"description=serve HTTPS with a generated self-signed certificate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		MetricsAddr:       "127.0.0.1:9100",
		LogFormat:         "json",
		LogLevel:          "info",
		Environment:       EnvironmentProduction,
		Store:             StorePostgres,
		StoreTimeout:      auth.DefaultStoreTimeout,
		CodeTTL:           auth.DefaultCodeTTL,
		MaxAttempts:       auth.DefaultMaxAttempts,
		SessionTTL:        auth.DefaultSessionTTL,
		SessionIssuer:     auth.DefaultSessionIssuer,
		CookieSecure:      true,
		SweepInterval:     auth.DefaultSweepInterval,
		Delivery:          DeliveryLog,
		PublicURL:         "http://localhost:8080",
		MagicLinkRedirect: "/",
		MailFrom:          "no-reply@example.com",
		NATSURL:           "nats://127.0.0.1:4222",
		NATSSubject:       "notify.send",
	}
}

// IsProduction reports whether development conveniences are off.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s: %s", key, msg)
	}

	if c.HTTPAddr == "" {
		return invalid("http_addr", c.HTTPAddr, "is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", c.LogFormat, "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", c.LogLevel, "must be debug, info, warn or error")
	}
	if !slices.Contains([]string{StorePostgres, StoreRedis, StoreMemory}, c.Store) {
		return invalid("store", c.Store, "must be postgres, redis or memory")
	}
	if c.Store == StoreMemory && c.IsProduction() {
		return invalid("store", c.Store, "memory store is not shared between instances and is refused in production")
	}
	for key, d := range map[string]time.Duration{
		"store_timeout":  c.StoreTimeout,
		"code_ttl":       c.CodeTTL,
		"session_ttl":    c.SessionTTL,
		"sweep_interval": c.SweepInterval,
	} {
		if d <= 0 {
			return invalid(key, d.String(), "must be positive")
		}
	}
	if c.MaxAttempts <= 0 {
		return invalid("max_attempts", c.MaxAttempts, "must be positive")
	}
	if c.SessionIssuer == "" {
		return invalid("session_issuer", c.SessionIssuer, "is required")
	}
	if c.CrossSite && !c.CookieSecure {
		return invalid("cross_site", c.CrossSite, "requires cookie_secure")
	}
	if _, err := auth.NewEmailPolicy(c.AllowedEmails); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "allowed_emails").Wrap(err)
	}
	if !slices.Contains([]string{DeliveryLog, DeliveryMailerSend, DeliveryNATS}, c.Delivery) {
		return invalid("delivery", c.Delivery, "must be log, mailersend or nats")
	}
	if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("public_url", c.PublicURL, "must be an absolute URL")
	}
	if c.MagicLinkRedirect == "" {
		return invalid("magic_link_redirect", c.MagicLinkRedirect, "is required")
	}
	if c.Delivery == DeliveryMailerSend && c.MailFrom == "" {
		return invalid("mail_from", c.MailFrom, "is required for mailersend delivery")
	}
	if c.Delivery == DeliveryNATS && (c.NATSURL == "" || c.NATSSubject == "") {
		return invalid("nats_url", c.NATSURL, "nats_url and nats_subject are required for nats delivery")
	}
	return nil
}

// Secrets are read from the environment only.
type Secrets struct {
	DatabaseURL      string
	RedisURL         string
	SessionSecret    string
	MailerSendAPIKey string
}

// SecretsFromEnv reads secrets through getenv.
func SecretsFromEnv(getenv func(string) string) Secrets {
	return Secrets{
		DatabaseURL:      getenv("DATABASE_URL"),
		RedisURL:         getenv("REDIS_URL"),
		SessionSecret:    getenv("SESSION_SECRET"),
		MailerSendAPIKey: getenv("MAILERSEND_API_KEY"),
	}
}

// Validate checks that every secret cfg needs is present.
func (s Secrets) Validate(cfg *Config) error {
	missing := func(name string) error {
		return oops.Code("CONFIG_SECRET_MISSING").With("env", name).Errorf("%s environment variable is required", name)
	}
	if len(s.SessionSecret) < auth.MinSecretLength {
		return oops.Code("CONFIG_SECRET_MISSING").
			With("env", "SESSION_SECRET").
			Errorf("SESSION_SECRET must be at least %d bytes", auth.MinSecretLength)
	}
	switch {
	case cfg.Store == StorePostgres && s.DatabaseURL == "":
		return missing("DATABASE_URL")
	case cfg.Store == StoreRedis && s.RedisURL == "":
		return missing("REDIS_URL")
	case cfg.Delivery == DeliveryMailerSend && s.MailerSendAPIKey == "":
		return missing("MAILERSEND_API_KEY")
	}
	return nil
}
