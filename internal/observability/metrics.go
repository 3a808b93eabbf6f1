// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Chain writer metrics
	OpsSubmitted        *prometheus.CounterVec
	OpsConfirmed        *prometheus.CounterVec
	OpsFailed           *prometheus.CounterVec
	ConfirmationLatency *prometheus.HistogramVec

	// Chain reader metrics
	ReaderPollErrors *prometheus.CounterVec

	// Reconciliation metrics
	VotesReconciled        prometheus.Counter
	ClaimsReconciled       prometheus.Counter
	ProfilesMinted         prometheus.Counter
	ReconcileRetries       prometheus.Counter
	ReconciliationFailures prometheus.Counter
	SweepRuns              *prometheus.CounterVec
	SweepDriftRepaired     prometheus.Counter
	SweepChainMismatches   prometheus.Counter

	// Enrichment metrics
	EnrichmentRequests *prometheus.CounterVec
	EnrichmentFailures *prometheus.CounterVec

	// Storage metrics
	AnalyticsWriteErrors prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "talentlink_dao"
	}

	return &Metrics{
		// Chain writer metrics
		OpsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "operations_submitted_total",
			Help:      "Total number of ledger operations submitted by kind",
		}, []string{"kind"}),
		OpsConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "operations_confirmed_total",
			Help:      "Total number of ledger operations confirmed by kind",
		}, []string{"kind"}),
		OpsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "operations_failed_total",
			Help:      "Total number of ledger operations failed by kind and reason",
		}, []string{"kind", "reason"}),
		ConfirmationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "confirmation_latency_seconds",
			Help:      "Submission-to-terminal latency in seconds by kind",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"kind"}),

		// Chain reader metrics
		ReaderPollErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "poll_errors_total",
			Help:      "Total number of failed poll attempts by tier",
		}, []string{"tier"}),

		// Reconciliation metrics
		VotesReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "votes_reconciled_total",
			Help:      "Total number of confirmed votes written to the vote ledger",
		}),
		ClaimsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "claims_reconciled_total",
			Help:      "Total number of confirmed claims reconciled into the cooldown cache",
		}),
		ProfilesMinted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "profiles_minted_total",
			Help:      "Total number of confirmed profile NFT mints reconciled into creator rows",
		}),
		ReconcileRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "store_retries_total",
			Help:      "Total number of retried vote ledger writes",
		}),
		ReconciliationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "failures_total",
			Help:      "Total number of confirmed chain writes that could not be persisted off-chain",
		}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_runs_total",
			Help:      "Total number of audit-log reconciliation sweeps by result",
		}, []string{"result"}),
		SweepDriftRepaired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_drift_repaired_total",
			Help:      "Total number of creators whose vote totals were rebuilt from the audit log",
		}),
		SweepChainMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_chain_mismatches_total",
			Help:      "Total number of creators whose audit log sum diverged from the on-chain tally",
		}),

		// Enrichment metrics
		EnrichmentRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "requests_total",
			Help:      "Total number of enrichment requests by kind",
		}, []string{"kind"}),
		EnrichmentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "failures_total",
			Help:      "Total number of enrichment failures absorbed into empty results by kind",
		}, []string{"kind"}),

		// Storage metrics
		AnalyticsWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "analytics_write_errors_total",
			Help:      "Total number of failed best-effort analytics writes",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
