// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records auth activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	codesIssued    *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	sessionsIssued prometheus.Counter
	sweptCodes     prometheus.Counter
	storeDuration  *prometheus.HistogramVec
}

// NewMetrics creates the auth metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		codesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passwordless_codes_issued_total",
			Help: "Total number of auth codes issued by purpose and channel",
		}, []string{"purpose", "channel"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "passwordless_verifications_total",
			Help: "Total number of verification attempts by outcome",
		}, []string{"outcome"}),
		sessionsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "passwordless_sessions_issued_total",
			Help: "Total number of session tokens minted",
		}),
		sweptCodes: f.NewCounter(prometheus.CounterOpts{
			Name: "passwordless_codes_swept_total",
			Help: "Total number of expired auth codes purged by the sweeper",
		}),
		storeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "passwordless_store_operation_duration_seconds",
			Help:    "Histogram of code store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) recordIssued(purpose Purpose, channel Channel) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(string(purpose), string(channel)).Inc()
}

func (m *Metrics) recordVerification(outcome Outcome) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) recordSession() {
	if m == nil {
		return
	}
	m.sessionsIssued.Inc()
}

func (m *Metrics) recordSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptCodes.Add(float64(n))
}

func (m *Metrics) observeStore(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
