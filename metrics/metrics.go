package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions recorded, by type and status",
		},
		[]string{"type", "status"},
	)

	EscrowReleasedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_released_amount_total",
			Help: "Cumulative escrow amount released to freelancers",
		},
	)

	ContractsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contracts_completed_total",
			Help: "Contracts that reached COMPLETED",
		},
	)

	OutboxDispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbox_dispatch_latency_seconds",
			Help:    "Time from outbox enqueue to publish",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"topic", "result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

func RecordTransaction(txType, status string) {
	TransactionsRecorded.WithLabelValues(txType, status).Inc()
}

func RecordOutboxDispatch(topic, result string, enqueuedAt time.Time) {
	OutboxDispatchLatency.WithLabelValues(topic, result).Observe(time.Since(enqueuedAt).Seconds())
}
