// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/passwordless/pkg/errutil"
)

// DefaultSweepInterval is how often expired codes are purged.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes expired codes. Expired records are already
// unusable; sweeping only reclaims storage.
type Sweeper struct {
	store    CodeStore
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	metrics  *Metrics
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the tick interval.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = d
	}
}

// WithSweeperClock sets the clock compared against deadlines.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithSweeperMetrics records sweep metrics.
func WithSweeperMetrics(m *Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// NewSweeper creates a Sweeper.
func NewSweeper(store CodeStore, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, oops.Code("SWEEPER_INVALID_CONFIG").Errorf("code store is required")
	}
	s := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		timeout:  DefaultStoreTimeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, oops.Code("SWEEPER_INVALID_CONFIG").With("interval", s.interval.String()).Errorf("sweep interval must be positive")
	}
	return s, nil
}

// SweepOnce purges expired codes once and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.store.DeleteExpired(ctx, s.now())
	s.metrics.observeStore("delete_expired", start)
	if err != nil {
		return 0, persistenceError("DeleteExpired", err)
	}
	s.metrics.recordSwept(n)
	if n > 0 {
		s.logger.DebugContext(ctx, "expired auth codes swept", "count", n)
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				errutil.LogErrorContext(ctx, s.logger, "auth code sweep failed", err)
			}
		}
	}
}
