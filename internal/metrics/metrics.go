// Package metrics provides Prometheus instrumentation for the matchmaking
// and relay engine: gauges for live connections and pairings, counters for
// relayed messages and match outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live relay connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veil_connections_total",
		Help: "Current number of live relay connections",
	})

	// MessagesTotal counts relayed messages by type: "chat", "dropped",
	// "system", "ended".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_messages_total",
		Help: "Total number of relay messages processed",
	}, []string{"type"})

	// MatchAttempts counts find-match requests by outcome: "matched",
	// "queued", "banned", "cooldown", "daily_limit", "unverified",
	// "already_paired".
	MatchAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_match_attempts_total",
		Help: "Find-match requests by outcome",
	}, []string{"outcome"})

	// ActivePairs tracks the current number of active pairings.
	ActivePairs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veil_active_pairs",
		Help: "Current number of active pairings",
	})

	// QueueSize tracks waiting-pool membership, labeled by gender pool.
	QueueSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veil_queue_size",
		Help: "Current waiting-pool membership per gender",
	}, []string{"pool"})

	// ReportsTotal counts reports filed through the relay.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_reports_total",
		Help: "Total abuse reports filed",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MatchAttempts,
		ActivePairs,
		QueueSize,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
