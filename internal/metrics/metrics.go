// Package metrics provides Prometheus metrics for the crucible daemon:
// counters and histograms for the pipeline, stages, and event fan-out.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TasksCreated tracks submitted tasks.
var TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "crucible",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
})

// TasksCompleted tracks tasks that reached the completed status.
var TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "crucible",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
})

// TasksFailed tracks tasks that reached the failed status by failing stage.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "crucible",
	Name:      "tasks_failed_total",
	Help:      "Total failed tasks.",
}, []string{"stage"})

// TasksActive tracks tasks currently moving through the pipeline.
var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "crucible",
	Name:      "tasks_active",
	Help:      "Number of tasks currently executing.",
})

// StageDuration tracks wall-clock stage duration in seconds.
var StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "crucible",
	Name:      "stage_duration_seconds",
	Help:      "Stage execution duration in seconds.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"stage"})

// StageRetries tracks retried stage attempts.
var StageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "crucible",
	Name:      "stage_retries_total",
	Help:      "Total retried stage attempts.",
}, []string{"stage"})

// Subscribers tracks live event subscribers.
var Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "crucible",
	Name:      "event_subscribers",
	Help:      "Number of live event stream subscribers.",
})

// SubscriberOverflows tracks subscribers disconnected for falling behind.
var SubscriberOverflows = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "crucible",
	Name:      "event_subscriber_overflows_total",
	Help:      "Total subscribers disconnected because their buffer filled.",
})
