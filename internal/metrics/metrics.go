// Package metrics holds the Prometheus collectors of the sync subsystem.
// All methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var channelStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "FAILED"}

// Metrics holds all Prometheus metrics for one process.
type Metrics struct {
	registry *prometheus.Registry

	// Channel metrics
	channelState      *prometheus.GaugeVec
	reconnectAttempts prometheus.Counter
	eventsReceived    *prometheus.CounterVec
	handlerPanics     *prometheus.CounterVec
	emitsDropped      prometheus.Counter

	// Reconciliation metrics
	reconciled *prometheus.CounterVec
	busDropped *prometheus.CounterVec

	// Send metrics
	sends       *prometheus.CounterVec
	sendLatency prometheus.Histogram
}

// New creates the collectors on a private registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		channelState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "omnisync_channel_state",
				Help: "1 for the current event channel state, 0 for the others",
			},
			[]string{"state"},
		),
		reconnectAttempts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "omnisync_channel_reconnect_attempts_total",
				Help: "Failed connection attempts of the event channel",
			},
		),
		eventsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisync_channel_events_received_total",
				Help: "Events received on the channel by name",
			},
			[]string{"event"},
		),
		handlerPanics: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisync_channel_handler_panics_total",
				Help: "Subscription handlers that panicked, by event name",
			},
			[]string{"event"},
		),
		emitsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "omnisync_channel_emits_dropped_total",
				Help: "Emits discarded because the channel was not connected",
			},
		),
		reconciled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisync_reconcile_total",
				Help: "Reconciliations by view and outcome",
			},
			[]string{"view", "outcome"},
		),
		busDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisync_bus_dropped_total",
				Help: "Bus deliveries skipped because a subscriber was full",
			},
			[]string{"kind"},
		),
		sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnisync_sends_total",
				Help: "Outbound message submissions by result",
			},
			[]string{"result"},
		),
		sendLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "omnisync_send_duration_seconds",
				Help:    "Time taken by the backend to accept an outbound message",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetChannelState marks state as the current one.
func (m *Metrics) SetChannelState(state string) {
	if m == nil {
		return
	}
	for _, s := range channelStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.channelState.WithLabelValues(s).Set(v)
	}
}

// RecordReconnectAttempt counts one failed dial.
func (m *Metrics) RecordReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// RecordEvent counts an event received on the channel.
func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

// RecordHandlerPanic counts a recovered handler panic.
func (m *Metrics) RecordHandlerPanic(event string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(event).Inc()
}

// RecordEmitDropped counts an emit discarded while disconnected.
func (m *Metrics) RecordEmitDropped() {
	if m == nil {
		return
	}
	m.emitsDropped.Inc()
}

// RecordReconcile counts one reconciliation of view ("inbox" or "thread").
func (m *Metrics) RecordReconcile(view, outcome string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(view, outcome).Inc()
}

// RecordBusDrop counts a bus event a slow subscriber missed.
func (m *Metrics) RecordBusDrop(kind string) {
	if m == nil {
		return
	}
	m.busDropped.WithLabelValues(kind).Inc()
}

// RecordSend counts a send and its latency. result is "ok" or "failed".
func (m *Metrics) RecordSend(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
	m.sendLatency.Observe(d.Seconds())
}
