// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts served requests by route template and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route template.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskkash_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"method", "route"})

	// LedgerPostings counts ledger entries by transaction type.
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_ledger_postings_total",
		Help: "Ledger transactions committed by type",
	}, []string{"type"})

	// LedgerPoints sums absolute points moved by transaction type.
	LedgerPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_ledger_points_total",
		Help: "Absolute task points moved by transaction type",
	}, []string{"type"})

	// SubmissionsReviewed counts admin submission decisions.
	SubmissionsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_submissions_reviewed_total",
		Help: "Task submissions reviewed by outcome",
	}, []string{"status"})

	// WithdrawalsRequested counts accepted withdrawal requests by method.
	WithdrawalsRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_withdrawals_requested_total",
		Help: "Withdrawal requests accepted by method",
	}, []string{"type"})

	// WithdrawalsReviewed counts admin withdrawal decisions.
	WithdrawalsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_withdrawals_reviewed_total",
		Help: "Withdrawals reviewed by outcome",
	}, []string{"status"})

	// Notifications counts notification publish and delivery outcomes.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_notifications_total",
		Help: "Notification messages by kind and outcome",
	}, []string{"kind", "outcome"})

	// SideEffectFailures counts swallowed best-effort failures.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskkash_side_effect_failures_total",
		Help: "Best-effort side effects that failed and were skipped",
	}, []string{"effect"})
)
