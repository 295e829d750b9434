package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	gatingEvaluationsTotal     *prometheus.CounterVec
	milestoneFulfillmentsTotal prometheus.Counter
	unlockEventsTotal          *prometheus.CounterVec
	gradeWritesTotal           *prometheus.CounterVec
	gradeWriteConflictsTotal   prometheus.Counter
	rollupLatencySeconds       *prometheus.HistogramVec
	structureCacheTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursegate_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gatingEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_gating_evaluations_total",
			Help: "Gate evaluations grouped by outcome.",
		}, []string{"outcome"})

		milestoneFulfillmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegate_milestone_fulfillments_total",
			Help: "Milestones fulfilled by learners.",
		})

		unlockEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_unlock_events_total",
			Help: "Content unlock events grouped by transport.",
		}, []string{"transport"})

		gradeWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_grade_writes_total",
			Help: "Persisted grade writes grouped by kind.",
		}, []string{"kind"})

		gradeWriteConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegate_grade_write_conflicts_total",
			Help: "Conditional grade writes abandoned after retries.",
		})

		rollupLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursegate_rollup_latency_seconds",
			Help:    "Latency distribution for grade rollups.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"scope"})

		structureCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegate_structure_cache_total",
			Help: "Structure view cache lookups grouped by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			gatingEvaluationsTotal, milestoneFulfillmentsTotal,
			unlockEventsTotal, gradeWritesTotal, gradeWriteConflictsTotal,
			rollupLatencySeconds, structureCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GatingEvaluations exposes the gate evaluation counter.
func GatingEvaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return gatingEvaluationsTotal
}

// MilestoneFulfillments exposes the fulfillment counter.
func MilestoneFulfillments() prometheus.Counter {
	RegisterMetrics()
	return milestoneFulfillmentsTotal
}

// UnlockEvents exposes the unlock event counter.
func UnlockEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return unlockEventsTotal
}

// GradeWrites exposes the grade write counter.
func GradeWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeWritesTotal
}

// GradeWriteConflicts exposes the abandoned-write counter.
func GradeWriteConflicts() prometheus.Counter {
	RegisterMetrics()
	return gradeWriteConflictsTotal
}

// RollupLatency exposes the rollup latency histogram.
func RollupLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return rollupLatencySeconds
}

// StructureCache exposes the structure cache counter.
func StructureCache() *prometheus.CounterVec {
	RegisterMetrics()
	return structureCacheTotal
}
