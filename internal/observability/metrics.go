package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_attempts_started_total",
			Help: "Checkout attempts opened",
		},
	)

	AttemptsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_attempts_finished_total",
			Help: "Checkout attempts by terminal state",
		},
		[]string{"state"},
	)

	ActiveAttempts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_attempts_active",
			Help: "Attempts currently holding inventory or counting down",
		},
	)

	ReserveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_reserve_seconds",
			Help:    "Duration of per-session reservation calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsCompensated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_holds_compensated_total",
			Help: "Compensating hold cancellations by trigger",
		},
		[]string{"trigger"},
	)

	SelectionKeysDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_selection_keys_dropped_total",
			Help: "Selection keys dropped as unresolvable",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
