package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stays_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_status_transitions_total",
			Help: "Applied lifecycle transitions",
		},
		[]string{"entity", "from", "to"},
	)

	SweepResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_sweep_payments_total",
			Help: "Expired payments handled by the auto-cancel sweep",
		},
		[]string{"result"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_job_runs_total",
			Help: "Scheduled job runs",
		},
		[]string{"job", "result"},
	)

	GatewayNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stays_gateway_notifications_total",
			Help: "Payment gateway notifications received",
		},
		[]string{"status_code", "result"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stays_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stays_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
