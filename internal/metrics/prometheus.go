package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishesTotal counts ingress publishes by outcome.
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_publishes_total",
			Help: "Total number of queue publishes by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesConsumed counts deliveries handed to the processing service.
	MessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_messages_consumed_total",
			Help: "Total number of queue messages consumed",
		},
	)

	// FetchesTotal counts processing outcomes per message.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_fetches_total",
			Help: "Total number of processed fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FetchDuration tracks wall time of fetch attempts in seconds.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_fetch_duration_seconds",
			Help:    "Duration of URL fetch attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	// ProcessingInFlight tracks whether a message handler is currently
	// running (the worker processes one message at a time).
	ProcessingInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_processing_in_flight",
			Help: "Number of message handlers currently executing",
		},
	)

	// HandlerErrors counts messages rejected by the poison-message policy.
	HandlerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_handler_errors_total",
			Help: "Total number of messages rejected without requeue",
		},
	)
)
