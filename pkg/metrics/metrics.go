package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts application decisions by kind (approve|reject|perm_reject|kick).
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_decisions_total",
			Help: "Total number of application decisions applied",
		},
		[]string{"decision"},
	)

	// TicketOpens counts ticket open attempts by result (created|already|pending|failed).
	TicketOpens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_ticket_opens_total",
			Help: "Total number of ticket open attempts",
		},
		[]string{"result"},
	)

	// TicketCloses counts ticket closes by channel outcome (delete|archive|none).
	TicketCloses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_ticket_closes_total",
			Help: "Total number of tickets closed",
		},
		[]string{"outcome"},
	)

	// OpenTickets tracks the number of currently open tickets.
	OpenTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewarden_open_tickets",
			Help: "Number of currently open modmail tickets",
		},
	)

	// ReconcilerGrants counts permission grants applied by the reconciler.
	ReconcilerGrants = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewarden_reconciler_grants_total",
			Help: "Total number of channel permission grants applied by the reconciler",
		},
	)

	// APILatency measures HTTP request latencies on the ops API.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatewarden_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
