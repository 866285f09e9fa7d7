package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Значения label'ов.
const (
	ResultOK    = "ok"
	ResultError = "error"

	OutcomeAcked        = "acked"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
)

var (
	// MessagesPublished — публикации в queue exchange.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_messages_published_total",
		Help: "Messages published to the queue exchange",
	}, []string{"routing_key", "result"})

	// Deliveries — итог обработки доставленных сообщений.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_deliveries_total",
		Help: "Delivered messages by final outcome",
	}, []string{"topic", "outcome"})

	// HandlerDuration — длительность вызова обработчика.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifier_handler_duration_seconds",
		Help:    "Handler execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	// QueueDepth — количество сообщений в очереди на момент последней проверки.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notifier_queue_depth",
		Help: "Messages ready in queue at last inspection",
	}, []string{"queue"})

	// HTTPRequests — запросы к admin API.
	HTTPRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_http_requests_total",
		Help: "Total HTTP requests handled by the admin API",
	})
)
