// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultNATSSubject is the subject notifications are published on.
const DefaultNATSSubject = "notify.send"

// flushTimeout bounds the flush when the caller's context has no deadline;
// nats refuses to flush without one.
const flushTimeout = 5 * time.Second

// publisher is the part of *nats.Conn the sender calls.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Notification is the JSON payload published for a downstream notifier.
type Notification struct {
	Template  string    `json:"template"`
	To        string    `json:"to"`
	Purpose   string    `json:"purpose"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject"`
	Code      string    `json:"code,omitempty"`
	Link      string    `json:"link,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NATSSender hands messages to a notifier service over NATS.
type NATSSender struct {
	conn    publisher
	subject string
}

// NewNATSSender creates a sender publishing on subject.
func NewNATSSender(conn *nats.Conn, subject string) *NATSSender {
	return newNATSSender(conn, subject)
}

func newNATSSender(conn publisher, subject string) *NATSSender {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSSender{conn: conn, subject: subject}
}

// Send publishes msg and waits for the server to acknowledge the flush.
func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	n := Notification{
		Template:  "auth_" + string(msg.Channel),
		To:        msg.To,
		Purpose:   string(msg.Purpose),
		Channel:   string(msg.Channel),
		Subject:   msg.Subject(),
		ExpiresAt: msg.ExpiresAt,
	}
	if msg.Link != "" {
		n.Link = msg.Link
	} else {
		n.Code = msg.Secret
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return oops.Code("DELIVERY_NATS_FAILED").With("operation", "marshal notification").Wrap(err)
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		return oops.Code("DELIVERY_NATS_FAILED").With("subject", s.subject).Wrap(err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return oops.Code("DELIVERY_NATS_FAILED").With("subject", s.subject).With("operation", "flush").Wrap(err)
	}
	return nil
}

// ConnectNATS dials url, retrying with exponential backoff.
func ConnectNATS(ctx context.Context, url string, attempts uint64, backoff time.Duration) (*nats.Conn, error) {
	if attempts == 0 {
		attempts = 1
	}
	var conn *nats.Conn
	err := retry.Do(ctx, retry.WithMaxRetries(attempts-1, retry.NewExponential(backoff)), func(ctx context.Context) error {
		c, err := nats.Connect(url,
			nats.Name("passwordless"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					slog.Warn("nats disconnected", "error", err)
				}
			}),
		)
		if err != nil {
			slog.WarnContext(ctx, "nats not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, oops.Code("NATS_CONNECT_FAILED").With("url", url).Wrap(err)
	}
	return conn, nil
}
