// Package metrics exposes Prometheus counters for conversation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters on a private registry so tests can run in
// parallel without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	MessagesProcessed prometheus.Counter
	LeadsCaptured     prometheus.Counter
}

// New creates a Metrics with all counters registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_started_total",
			Help: "Number of conversation sessions started.",
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_messages_processed_total",
			Help: "Number of user messages processed.",
		}),
		LeadsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_leads_captured_total",
			Help: "Number of leads captured from completed conversations.",
		}),
	}
	m.registry.MustRegister(m.SessionsStarted, m.MessagesProcessed, m.LeadsCaptured)
	return m
}

// Handler returns an http.Handler serving the registry in the Prometheus
// text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
