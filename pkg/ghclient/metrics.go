// SPDX-FileCopyrightText: Copyright 2026 The PulseWatch Authors
// SPDX-License-Identifier: Apache-2.0

package ghclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsewatch/ghcore/pkg/ghclient/breaker"
	"github.com/pulsewatch/ghcore/pkg/ghclient/ratelimit"
)

// Metrics are the ambient observability surface for a Client: request
// volume and latency, current rate-limit headroom, and breaker state,
// registered on a private registry so multiple Clients in the same
// process never collide on metric names.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitGauge  *prometheus.GaugeVec
	breakerState    prometheus.Gauge
}

func newMetrics() *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghcore",
			Name:      "requests_total",
			Help:      "Total GitHub API requests issued, by HTTP method.",
		}, []string{"method"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ghcore",
			Name:      "request_duration_seconds",
			Help:      "GitHub API request latency in seconds, by HTTP method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rateLimitGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ghcore",
			Name:      "rate_limit_remaining",
			Help:      "Most recently observed X-RateLimit-Remaining, by resource.",
		}, []string{"resource"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ghcore",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}),
	}
	return m
}

// Registry returns a fresh prometheus.Registry with this Client's
// metrics registered, for callers who want to expose them over HTTP.
func (c *Client) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c.metrics.requestsTotal,
		c.metrics.requestDuration,
		c.metrics.rateLimitGauge,
		c.metrics.breakerState,
	)
	return reg
}

func (m *Metrics) observeRequest(method string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRateLimit(g *ratelimit.Governor) {
	snap, ok := g.Snapshot(ratelimit.DefaultResource)
	if !ok {
		return
	}
	m.rateLimitGauge.WithLabelValues(snap.Resource).Set(float64(snap.Remaining))
}

func (m *Metrics) observeBreakerState(s breaker.State) {
	switch s {
	case breaker.StateClosed:
		m.breakerState.Set(0)
	case breaker.StateHalfOpen:
		m.breakerState.Set(1)
	case breaker.StateOpen:
		m.breakerState.Set(2)
	}
}
