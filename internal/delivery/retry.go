// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Retrying wraps a Sender and retries failures with exponential backoff.
// Errors wrapping ErrPermanent are returned at once.
type Retrying struct {
	next     Sender
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

// NewRetrying creates a Retrying sender making at most attempts tries.
func NewRetrying(next Sender, attempts uint64, backoff time.Duration, logger *slog.Logger) *Retrying {
	if attempts == 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, logger: logger}
}

// Send delivers msg through the wrapped sender.
func (r *Retrying) Send(ctx context.Context, msg Message) error {
	tries := 0
	b := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tries++
		err := r.next.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		r.logger.WarnContext(ctx, "delivery failed, retrying", "attempt", tries, "channel", msg.Channel, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("DELIVERY_FAILED").With("attempts", tries).Wrap(err)
	}
	return nil
}
