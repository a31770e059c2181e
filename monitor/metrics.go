package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neatchat",
		Subsystem: "ratelimit",
		Name:      "admission_decisions_total",
		Help:      "Rate limit admission decisions by endpoint class and outcome.",
	}, []string{"class", "outcome"})

	storeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neatchat",
		Subsystem: "ratelimit",
		Name:      "store_failures_total",
		Help:      "Failed shared-store operations that caused fail-open admissions.",
	})

	streamsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neatchat",
		Subsystem: "relay",
		Name:      "streams_started_total",
		Help:      "Completion streams opened against the upstream provider.",
	})

	streamsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neatchat",
		Subsystem: "relay",
		Name:      "streams_finished_total",
		Help:      "Completion streams by terminal outcome (completed, interrupted, upstream_error, cancelled).",
	}, []string{"outcome"})

	streamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "neatchat",
		Subsystem: "relay",
		Name:      "stream_duration_seconds",
		Help:      "Wall time from upstream connect to terminal envelope.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func RecordAdmission(class string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	admissionDecisions.WithLabelValues(class, outcome).Inc()
}

func RecordStoreFailure() {
	storeFailures.Inc()
}

func RecordStreamStarted() {
	streamsStarted.Inc()
}

func RecordStreamFinished(outcome string, seconds float64) {
	streamsFinished.WithLabelValues(outcome).Inc()
	streamDuration.Observe(seconds)
}
