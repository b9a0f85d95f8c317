package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisionsTotal counts report-view admissions and denials by tier.
	GateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickerval",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Report-view gate decisions by outcome and tier.",
	}, []string{"decision", "tier"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickerval",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tickerval",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// SubscriptionChangesTotal counts store writes by outcome (applied/ignored_stale).
	SubscriptionChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickerval",
		Subsystem: "billing",
		Name:      "subscription_changes_total",
		Help:      "Subscription store changes by event kind and outcome.",
	}, []string{"kind", "outcome"})
)
