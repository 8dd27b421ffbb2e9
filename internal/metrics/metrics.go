// Package metrics defines the Prometheus instrumentation for the alerting
// engine, exposed by the HTTP server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation loop
	EvaluationCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsnap_evaluation_cycles_total",
			Help: "Total number of completed evaluation cycles",
		},
	)

	EvaluationCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coldsnap_evaluation_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RulesEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsnap_rules_evaluated_total",
			Help: "Total number of per-rule evaluations",
		},
	)

	CooldownSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsnap_cooldown_skips_total",
			Help: "Evaluations that fired but were suppressed by cooldown",
		},
	)

	StoreErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coldsnap_store_errors_total",
			Help: "Rule-list failures that aborted a whole cycle",
		},
	)

	// Delivery
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldsnap_notifications_total",
			Help: "Delivery attempts by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: sent, failed
	)
)
