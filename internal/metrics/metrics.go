package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed batch runs.
	OutcomeSuccess = "success"
	// OutcomeError labels batch runs that failed on input or persistence.
	OutcomeError = "error"

	// ClassificationMatched labels events accepted against a catalogued case.
	ClassificationMatched = "matched"
	// ClassificationUnknown labels events below threshold or without candidates.
	ClassificationUnknown = "unknown"
	// ClassificationError labels events whose classification degraded on failure.
	ClassificationError = "error"
)

var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "batches_total",
			Help:      "Total number of batch runs handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	batchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triage_engine",
			Name:      "batch_seconds",
			Help:      "Batch processing latency in seconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "classifications_total",
			Help:      "Classified events, partitioned by match outcome.",
		},
		[]string{"outcome"},
	)

	groupingFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "grouping_fallbacks_total",
			Help:      "Case buckets degraded to singleton tickets after a grouping failure.",
		},
	)

	ticketsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "tickets_created_total",
			Help:      "Tickets produced across all batch runs.",
		},
	)

	docsSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "triage_engine",
			Name:      "docs_saved_total",
			Help:      "Ticket-stamped event documents written to the destination index.",
		},
	)
)

// Register attaches triage-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		batchesTotal,
		batchDurationSeconds,
		classificationsTotal,
		groupingFallbacksTotal,
		ticketsCreatedTotal,
		docsSavedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveBatch records a batch duration and outcome label.
func ObserveBatch(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	batchesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	batchDurationSeconds.Observe(duration.Seconds())
}

// ObserveClassification counts one classified event by outcome.
func ObserveClassification(outcome string) {
	classificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGroupingFallback counts one bucket that fell back to singleton tickets.
func ObserveGroupingFallback() {
	groupingFallbacksTotal.Inc()
}

// ObservePersisted records tickets and documents written for one batch.
func ObservePersisted(tickets, docs int) {
	if tickets > 0 {
		ticketsCreatedTotal.Add(float64(tickets))
	}
	if docs > 0 {
		docsSavedTotal.Add(float64(docs))
	}
}
