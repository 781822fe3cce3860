// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package delivery

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. The secret
// is included only when reveal is set, which is meant for development.
type LogSender struct {
	logger *slog.Logger
	reveal bool
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger, reveal bool) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, reveal: reveal}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{
		"to", msg.To,
		"purpose", msg.Purpose,
		"channel", msg.Channel,
		"expires_at", msg.ExpiresAt,
	}
	if s.reveal {
		attrs = append(attrs, "dev_code", msg.Secret)
		if msg.Link != "" {
			attrs = append(attrs, "dev_link", msg.Link)
		}
	}
	s.logger.InfoContext(ctx, "auth code delivery (log only)", attrs...)
	return nil
}
