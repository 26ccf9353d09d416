package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minechat",
			Subsystem: "transport",
			Name:      "connect_attempts_total",
			Help:      "Dial attempts to the chat server by connection role and result.",
		},
		[]string{"role", "result"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minechat",
			Subsystem: "protocol",
			Name:      "handshakes_total",
			Help:      "Authentication and registration handshakes by mode and result.",
		},
		[]string{"mode", "result"},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minechat",
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Chat lines read from the listen connection.",
		},
	)
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minechat",
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "Chat messages published on the send connection.",
		},
	)
	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "minechat",
			Subsystem: "session",
			Name:      "open",
			Help:      "Sessions currently open.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minechat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minechat",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectAttempts,
			handshakes,
			messagesReceived,
			messagesSent,
			sessionsOpen,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordConnectAttempt(role string, err error) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(role, resultLabel(err)).Inc()
}

func RecordHandshake(mode string, err error) {
	RegisterMetrics()
	handshakes.WithLabelValues(mode, resultLabel(err)).Inc()
}

func RecordMessageReceived() {
	RegisterMetrics()
	messagesReceived.Inc()
}

func RecordMessageSent() {
	RegisterMetrics()
	messagesSent.Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsOpen.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsOpen.Dec()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
