package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homeops",
		Subsystem: "jobs",
		Name:      "house_runs_total",
		Help:      "Per-house job runs, labeled by job and outcome (ok, failed, skipped).",
	}, []string{"job", "outcome"})

	affectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homeops",
		Subsystem: "jobs",
		Name:      "affected_total",
		Help:      "Tasks created, tasks marked overdue, or users notified, labeled by job.",
	}, []string{"job"})

	houseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homeops",
		Subsystem: "jobs",
		Name:      "house_duration_seconds",
		Help:      "Time spent running one job against one house.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job"})

	invalidRecurrenceCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "homeops",
		Subsystem: "jobs",
		Name:      "invalid_recurrence_total",
		Help:      "Recurring tasks skipped because their rule could not be parsed.",
	})
)

func init() {
	prometheus.MustRegister(runCounter, affectedCounter, houseDuration, invalidRecurrenceCounter)
}
