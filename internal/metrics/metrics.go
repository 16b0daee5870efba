// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the testgen client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_frames_received_total",
		Help: "Inbound frames by classified kind",
	}, []string{"kind"}) // kind=status|job_created|step|done|stopped|error|unrecognized

	assetFetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_asset_fetch_attempts_total",
		Help: "Asset fetch attempts by HTTP status class",
	}, []string{"status_class"})

	assetFetchAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "testgen_asset_fetch_attempt_duration_seconds",
		Help:    "Duration of a single asset fetch attempt",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 8),
	}, []string{"status_class"})

	assetFetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_asset_fetch_outcomes_total",
		Help: "Asset fetches by final outcome",
	}, []string{"outcome"}) // outcome=fetched|missing

	assetFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "testgen_asset_fetch_duration_seconds",
		Help:    "Total duration of an asset fetch including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 10),
	})

	queueTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_queue_tasks_total",
		Help: "Ordered queue tasks by outcome",
	}, []string{"outcome"}) // outcome=ok|error|panic|skipped

	queueTaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "testgen_queue_task_duration_seconds",
		Help:    "Execution time of ordered queue tasks",
		Buckets: prometheus.ExponentialBuckets(0.001, 4.0, 9),
	})

	sessionsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_sessions_total",
		Help: "Sessions by terminal state",
	}, []string{"state"}) // state=completed|stopped|errored

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "testgen_sessions_active",
		Help: "Sessions currently open or active",
	})

	recordsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testgen_records_saved_total",
		Help: "Aggregate records persisted by backend and result",
	}, []string{"backend", "result"}) // result=ok|error
)

// StatusClass maps an attempt result to a low-cardinality label.
func StatusClass(err error, status int) string {
	if err != nil && status == 0 {
		return "error"
	}
	switch {
	case status >= 500:
		return "5xx"
	case status == 404:
		return "404"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status > 0:
		return "1xx"
	}
	return "unknown"
}

// RecordFrame counts one inbound frame.
func RecordFrame(kind string) {
	framesReceived.WithLabelValues(kind).Inc()
}

// RecordFetchAttempt records a single asset fetch attempt.
func RecordFetchAttempt(class string, d time.Duration) {
	assetFetchAttempts.WithLabelValues(class).Inc()
	assetFetchAttemptDuration.WithLabelValues(class).Observe(d.Seconds())
}

// RecordFetchOutcome records the final result of a fetch.
func RecordFetchOutcome(fetched bool, d time.Duration) {
	outcome := "missing"
	if fetched {
		outcome = "fetched"
	}
	assetFetchOutcomes.WithLabelValues(outcome).Inc()
	assetFetchDuration.Observe(d.Seconds())
}

// RecordTask records a queue task outcome. Skipped tasks carry no duration.
func RecordTask(outcome string, d time.Duration) {
	queueTasks.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		queueTaskDuration.Observe(d.Seconds())
	}
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionEnded records the terminal state and decrements the active gauge.
func SessionEnded(state string) {
	sessionsTerminal.WithLabelValues(state).Inc()
	sessionsActive.Dec()
}

// RecordSave records a persistence attempt.
func RecordSave(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	recordsSaved.WithLabelValues(backend, result).Inc()
}
