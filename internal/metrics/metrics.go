// Package metrics defines the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "demavlink"

// Dispatch results.
const (
	ResultHandled   = "handled"
	ResultMalformed = "malformed"
	ResultError     = "error"
	ResultPanic     = "panic"
)

// Metrics holds the module's collectors.
type Metrics struct {
	dispatched       *prometheus.CounterVec
	sent             *prometheus.CounterVec
	sendErrors       *prometheus.CounterVec
	throttled        *prometheus.CounterVec
	connectionStatus prometheus.Gauge
	statusChanges    prometheus.Counter
	monitorClients   prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dispatched_total",
			Help:      "Inbound datagrams by dispatch rule and result",
		}, []string{"rule", "result"}),

		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound envelopes by message type",
		}, []string{"type"}),

		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Outbound envelopes that failed to encode or send",
		}, []string{"type"}),

		throttled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_throttled_total",
			Help:      "Telemetry envelopes skipped by the traffic optimizer",
		}, []string{"type"}),

		connectionStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "Last connection status reported by the communicator",
		}),

		statusChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_status_changes_total",
			Help:      "Connection status transitions",
		}),

		monitorClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_clients",
			Help:      "Connected monitor WebSocket clients",
		}),
	}
}

func (m *Metrics) Dispatched(rule, result string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(rule, result).Inc()
}

func (m *Metrics) Sent(msgType int) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(strconv.Itoa(msgType)).Inc()
}

func (m *Metrics) SendError(msgType int) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(strconv.Itoa(msgType)).Inc()
}

func (m *Metrics) Throttled(msgType int) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(strconv.Itoa(msgType)).Inc()
}

// StatusChanged records a connection status transition.
func (m *Metrics) StatusChanged(status int) {
	if m == nil {
		return
	}
	m.connectionStatus.Set(float64(status))
	m.statusChanges.Inc()
}

func (m *Metrics) SetMonitorClients(n int) {
	if m == nil {
		return
	}
	m.monitorClients.Set(float64(n))
}
