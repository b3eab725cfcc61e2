package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	socketConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "courier",
			Subsystem: "socket",
			Name:      "connections_open",
			Help:      "Open socket connections.",
		},
		[]string{"role"},
	)
	socketBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "socket",
			Name:      "bytes_total",
			Help:      "Bytes moved over socket connections.",
		},
		[]string{"direction"},
	)
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Total webhook HTTP requests.",
		},
		[]string{"method", "status"},
	)
	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courier",
			Subsystem: "webhook",
			Name:      "request_duration_seconds",
			Help:      "Webhook request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	messagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "broker",
			Name:      "messages_published_total",
			Help:      "Messages published per topic.",
		},
		[]string{"topic"},
	)
	messagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "broker",
			Name:      "messages_consumed_total",
			Help:      "Messages consumed per topic.",
		},
		[]string{"topic"},
	)
	messageBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courier",
			Subsystem: "broker",
			Name:      "message_bytes",
			Help:      "Envelope frame size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"topic"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			socketConnections,
			socketBytes,
			webhookRequests,
			webhookDuration,
			messagesPublished,
			messagesConsumed,
			messageBytes,
		)
	})
}

func ConnectionOpened(role string) {
	RegisterMetrics()
	socketConnections.WithLabelValues(role).Inc()
}

func ConnectionClosed(role string) {
	RegisterMetrics()
	socketConnections.WithLabelValues(role).Dec()
}

func RecordSocketBytes(direction string, n int) {
	RegisterMetrics()
	socketBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordWebhookRequest(method string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	webhookRequests.WithLabelValues(method, statusLabel).Inc()
	webhookDuration.WithLabelValues(method, statusLabel).Observe(duration.Seconds())
}

func RecordPublish(topic string, frameBytes int) {
	RegisterMetrics()
	messagesPublished.WithLabelValues(topic).Inc()
	messageBytes.WithLabelValues(topic).Observe(float64(frameBytes))
}

func RecordConsume(topic string) {
	RegisterMetrics()
	messagesConsumed.WithLabelValues(topic).Inc()
}
