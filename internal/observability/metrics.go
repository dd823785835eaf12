package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mkt_webhook_events_total",
			Help: "Payment gateway webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	CheckoutSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mkt_checkout_sessions_total",
			Help: "Hosted checkout sessions created",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mkt_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OversellRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mkt_oversell_rejected_total",
			Help: "Package sold_quantity increments refused at the cap",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mkt_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mkt_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
