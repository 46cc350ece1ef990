// Package metrics provides Prometheus instrumentation for the sanctum
// server: gauges for live connections, counters for event and message
// throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LiveConnections tracks currently connected live-stream clients,
	// labeled by transport: "sse" or "ws".
	LiveConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sanctum_live_connections",
		Help: "Current number of connected live-stream clients",
	}, []string{"transport"})

	// EventsEmitted counts events emitted onto the bus, labeled by event type.
	EventsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sanctum_events_emitted_total",
		Help: "Total number of sanctum events emitted",
	}, []string{"type"})

	// CommandErrors counts rejected command requests.
	CommandErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanctum_command_errors_total",
		Help: "Total number of rejected command requests",
	})

	// MessagesStored counts canonical message records written to the vault.
	MessagesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanctum_messages_stored_total",
		Help: "Total number of canonical message records written",
	})

	// MessagesDeduplicated counts sends skipped because the idempotency key
	// already had a vault file.
	MessagesDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanctum_messages_deduplicated_total",
		Help: "Total number of sends skipped as duplicates",
	})

	// SMSJobsEnqueued counts outbound SMS jobs published to the queue.
	SMSJobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sanctum_sms_jobs_enqueued_total",
		Help: "Total number of outbound SMS jobs enqueued",
	})
)

func init() {
	prometheus.MustRegister(
		LiveConnections,
		EventsEmitted,
		CommandErrors,
		MessagesStored,
		MessagesDeduplicated,
		SMSJobsEnqueued,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
