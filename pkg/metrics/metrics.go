// Package metrics provides Prometheus metrics for clover.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scoutalgo/clover/pkg/models"
)

var (
	// DecisionsTotal tracks match decisions by verdict and reason
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "decisions_total",
			Help:      "Total number of match decisions by verdict and reason",
		},
		[]string{"verdict", "reason"},
	)

	// CandidateTopScore tracks the best local score per decided listing
	CandidateTopScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "top_score",
			Help:      "Score of the best candidate per decided listing",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100},
		},
	)

	// OracleCallsTotal tracks oracle calls by outcome
	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total number of oracle calls by outcome",
		},
		[]string{"outcome"},
	)

	// OracleCallDuration tracks oracle latency
	OracleCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Duration of oracle calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// OracleCacheTotal tracks verdict cache lookups
	OracleCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "oracle",
			Name:      "cache_lookups_total",
			Help:      "Total number of oracle verdict cache lookups by result",
		},
		[]string{"result"},
	)

	// MergesTotal tracks merge outcomes by status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge requests by status",
		},
		[]string{"status"},
	)

	// RunsTotal tracks matching runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Total number of batch runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RunDuration tracks batch run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "job",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"kind"},
	)

	// RunInFlight is 1 while a run of the given kind holds the guard
	RunInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "job",
			Name:      "in_flight",
			Help:      "Whether a batch run is in progress",
		},
		[]string{"kind"},
	)

	// IndexedListings tracks the size of the last built candidate index
	IndexedListings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "index",
			Name:      "listings",
			Help:      "Listings in the last built candidate index",
		},
		[]string{"state"},
	)

	// ReviewVerdictsTotal tracks review verdicts
	ReviewVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "review",
			Name:      "verdicts_total",
			Help:      "Total number of review verdicts",
		},
		[]string{"verdict"},
	)
)

// ObserveDecision records one match decision
func ObserveDecision(d *models.MatchDecision) {
	DecisionsTotal.WithLabelValues(string(d.Verdict), d.Reason).Inc()
	if d.CandidateCount > 0 {
		CandidateTopScore.Observe(float64(d.TopScore))
	}
}

// ObserveRun records a finished run
func ObserveRun(kind, outcome string, elapsed time.Duration) {
	RunsTotal.WithLabelValues(kind, outcome).Inc()
	RunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveReview records the verdicts of a review report
func ObserveReview(report *models.ReviewReport) {
	for _, r := range report.Results {
		ReviewVerdictsTotal.WithLabelValues(string(r.Verdict)).Inc()
	}
}
