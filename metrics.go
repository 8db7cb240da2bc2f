// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package xmlrpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values of xmlrpc_connections_finished_total.
const (
	OutcomeCompleted = "completed"
	OutcomeFault     = "fault"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the Prometheus collectors of a Manager. A nil *Metrics
// records nothing.
type Metrics struct {
	Spawned         prometheus.Counter
	Finished        *prometheus.CounterVec
	InFlight        prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
	RequestBytes    prometheus.Counter
	ResponseBytes   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Spawned: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "xmlrpc",
				Name:      "connections_spawned_total",
				Help:      "Connections registered with the manager",
			},
		),
		Finished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xmlrpc",
				Name:      "connections_finished_total",
				Help:      "Connections that reached a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "xmlrpc",
				Name:      "connections_in_flight",
				Help:      "Connections started and not yet finished",
			},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xmlrpc",
				Name:      "request_duration_seconds",
				Help:      "Round trip latency by XML-RPC method",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
			},
			[]string{"method"},
		),
		RequestBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "xmlrpc",
				Name:      "request_bytes_total",
				Help:      "Request body bytes sent",
			},
		),
		ResponseBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "xmlrpc",
				Name:      "response_bytes_total",
				Help:      "Response body bytes received",
			},
		),
	}
}

func (m *Metrics) spawned() {
	if m == nil {
		return
	}
	m.Spawned.Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) finished(s Summary) {
	if m == nil {
		return
	}
	m.Finished.WithLabelValues(outcome(s)).Inc()
	if s.Started.IsZero() {
		return
	}
	m.InFlight.Dec()
	m.RequestDuration.WithLabelValues(s.Request.Method()).Observe(s.Duration().Seconds())
	m.RequestBytes.Add(float64(s.BytesSent))
	m.ResponseBytes.Add(float64(s.BytesReceived))
}

func outcome(s Summary) string {
	switch s.State {
	case StateCompleted:
		if s.Response != nil && s.Response.IsFault() {
			return OutcomeFault
		}
		return OutcomeCompleted
	case StateCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
