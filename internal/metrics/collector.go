// Package metrics provides internal Prometheus instrumentation for the
// budget, ledger, and rate-limiter components. Internal; not imported by
// consumers of the gateway. Grounded on the teacher's
// internal/metrics/collector.go (namespace + CounterVec/HistogramVec/
// GaugeVec construction via promauto).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every gauge/counter/histogram the gateway exposes.
type Collector struct {
	BudgetSpendUSD        *prometheus.GaugeVec
	BudgetWarningsTotal   *prometheus.CounterVec
	BudgetRejectionsTotal *prometheus.CounterVec

	LedgerQueueDepth     prometheus.Gauge
	LedgerBatchLatency   prometheus.Histogram
	LedgerDroppedTotal   prometheus.Counter
	LedgerDegraded       prometheus.Gauge

	LimiterReservationsTotal *prometheus.CounterVec
	LimiterExhaustedTotal    *prometheus.CounterVec
	LimiterWaitSeconds       *prometheus.HistogramVec

	OrchestratorRequestDuration *prometheus.HistogramVec
	RetryAttemptsTotal          *prometheus.CounterVec
}

// NewCollector registers every metric under namespace (e.g. "llmgate").
func NewCollector(namespace string) *Collector {
	c := &Collector{}

	c.BudgetSpendUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_spend_usd",
		Help:      "Running total of spend for the current local day.",
	}, []string{"provider"})

	c.BudgetWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "budget_warnings_total",
		Help:      "Count of budget warn-ratio threshold crossings.",
	}, []string{"provider"})

	c.BudgetRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "budget_rejections_total",
		Help:      "Count of calls rejected by QuotaExceeded.",
	}, []string{"provider"})

	c.LedgerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_queue_depth",
		Help:      "Current depth of the ledger ingest queue.",
	})

	c.LedgerBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_batch_latency_seconds",
		Help:      "Time to commit one ledger write batch.",
		Buckets:   prometheus.DefBuckets,
	})

	c.LedgerDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_dropped_events_total",
		Help:      "Count of non-terminal events dropped under overflow.",
	})

	c.LedgerDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_degraded",
		Help:      "1 when the ledger writer has given up on persistent failure.",
	})

	c.LimiterReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "limiter_reservations_total",
		Help:      "Count of rate-limiter reservation outcomes.",
	}, []string{"provider", "model", "outcome"})

	c.LimiterExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "limiter_exhausted_total",
		Help:      "Count of Exhausted outcomes by binding window.",
	}, []string{"provider", "model", "window"})

	c.LimiterWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "limiter_wait_seconds",
		Help:      "Observed wait time honoring a WaitHint.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "model"})

	c.OrchestratorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "orchestrator_request_duration_seconds",
		Help:      "End-to-end duration of one generate()/stream() call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "model", "status"})

	c.RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_attempts_total",
		Help:      "Count of adapter retry attempts by resulting error kind.",
	}, []string{"provider", "model", "kind"})

	return c
}
