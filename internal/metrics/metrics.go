// Package metrics defines the Prometheus collectors exposed by the
// supervisor and engine processes. Metrics are purely
// observational: nothing in the engine or supervisor reads them back to
// make decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles every metric this module exposes, registered
// against a caller-supplied registry so cmd/agentmon and cmd/monctl can
// each own their own /metrics endpoint. Gatherer is kept alongside so
// callers that only have a Collector (e.g. controlplane) can still build
// a promhttp.Handler that reflects exactly these metrics, not whatever
// happens to be registered against prometheus.DefaultGatherer.
type Collector struct {
	Gatherer prometheus.Gatherer

	QueuePending      *prometheus.GaugeVec
	MessagesProcessed *prometheus.CounterVec
	MessagesStored    *prometheus.CounterVec
	HeartbeatFailures *prometheus.CounterVec
	MonitorsRunning   prometheus.Gauge
	KillSwitchActive  prometheus.Gauge
}

// New registers every collector against reg, which must also implement
// prometheus.Gatherer (true of *prometheus.Registry and the default
// registry) so Collector can serve its own /metrics handler.
func New(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Gatherer: reg,
		QueuePending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mentionrunner_queue_pending",
			Help: "Number of unprocessed mentions queued for an agent.",
		}, []string{"agent"}),
		MessagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionrunner_messages_processed_total",
			Help: "Total mentions that completed processing (success or handler error).",
		}, []string{"agent"}),
		MessagesStored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionrunner_messages_stored_total",
			Help: "Total mentions newly accepted into the durable store.",
		}, []string{"agent"}),
		HeartbeatFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionrunner_heartbeat_failures_total",
			Help: "Total failed heartbeat pings.",
		}, []string{"agent"}),
		MonitorsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mentionrunner_monitors_running",
			Help: "Number of agent monitor processes currently tracked as running.",
		}),
		KillSwitchActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mentionrunner_kill_switch_active",
			Help: "1 if the process-wide kill switch is engaged, else 0.",
		}),
	}
}

// IncMessagesProcessed implements engine.MetricsSink.
func (c *Collector) IncMessagesProcessed(agent string) {
	c.MessagesProcessed.WithLabelValues(agent).Inc()
}

// IncMessagesStored implements engine.MetricsSink.
func (c *Collector) IncMessagesStored(agent string) {
	c.MessagesStored.WithLabelValues(agent).Inc()
}

// SetQueuePending implements engine.MetricsSink.
func (c *Collector) SetQueuePending(agent string, n int) {
	c.QueuePending.WithLabelValues(agent).Set(float64(n))
}

// IncHeartbeatFailure implements engine.MetricsSink.
func (c *Collector) IncHeartbeatFailure(agent string) {
	c.HeartbeatFailures.WithLabelValues(agent).Inc()
}
