// Package metrics holds the Prometheus instruments for the platform.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec

	ProgressComputations prometheus.Counter
	StatusTransitions    *prometheus.CounterVec

	ThirdPartyRequests    prometheus.Counter
	ThirdPartySubmissions *prometheus.CounterVec

	ReconcilerRuns    *prometheus.CounterVec
	ReconcilerScanned prometheus.Counter
	ReconcilerMatches *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		ProgressComputations: factory.NewCounter(prometheus.CounterOpts{
			Name: "certflow_progress_computations_total",
			Help: "Total progress recomputations performed.",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_application_status_transitions_total",
			Help: "Application status transitions by resulting status.",
		}, []string{"to_status"}),
		ThirdPartyRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "certflow_third_party_requests_total",
			Help: "Third-party verification requests initiated.",
		}),
		ThirdPartySubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_third_party_submissions_total",
			Help: "Third-party form submissions recorded, by party role.",
		}, []string{"role"}),
		ReconcilerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_reconciler_runs_total",
			Help: "Reconciler runs by outcome.",
		}, []string{"outcome"}),
		ReconcilerScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "certflow_reconciler_messages_scanned_total",
			Help: "Inbox messages scanned by the reconciler.",
		}),
		ReconcilerMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_reconciler_matches_total",
			Help: "Reconciler matches by strategy.",
		}, []string{"strategy"}),
	}
}
