// Package metrics exposes prometheus counters for the order pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileOutcomes counts processed gateway notifications by result.
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keytshop",
		Subsystem: "reconcile",
		Name:      "outcomes_total",
		Help:      "Payment reconciliation outcomes by result.",
	}, []string{"channel", "outcome"})

	// SchedulerJobRuns counts scheduler job executions.
	SchedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keytshop",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduler job executions.",
	}, []string{"job"})

	// SchedulerJobErrors counts failed scheduler job executions.
	SchedulerJobErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keytshop",
		Subsystem: "scheduler",
		Name:      "job_errors_total",
		Help:      "Scheduler job executions that returned an error.",
	}, []string{"job"})

	// SubscriptionDefaultDurations counts items whose duration could not
	// be parsed and fell back to one year.
	SubscriptionDefaultDurations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keytshop",
		Subsystem: "fulfillment",
		Name:      "default_durations_total",
		Help:      "Order items fulfilled with the fallback one-year duration.",
	})

	// PoolExhaustions counts allocation attempts that found an empty pool.
	PoolExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keytshop",
		Subsystem: "fulfillment",
		Name:      "pool_exhaustions_total",
		Help:      "Credential allocations that hit an exhausted pool.",
	})
)

const (
	ChannelWebhook = "webhook"
	ChannelPoll    = "poll"

	OutcomeApplied          = "applied"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeUnknownOrder     = "unknown_order"
	OutcomeIgnored          = "ignored"
	OutcomeError            = "error"
)
