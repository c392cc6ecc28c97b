package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the IPC service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// IPC metrics
	MessagesSent     *prometheus.CounterVec
	MessagesReceived prometheus.Counter
	EntitiesActive   *prometheus.GaugeVec
	ShmBytes         prometheus.Gauge
	ShmAttaches      prometheus.Counter
	ShmDetaches      prometheus.Counter
	SemaphoreWaits   *prometheus.CounterVec
	EventsPublished  prometheus.Counter
	EventsDelivered  prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector and registers its series.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ipcd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		MessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcd_messages_sent_total",
				Help: "Messages accepted by queues",
			},
			[]string{"kind"},
		),
		MessagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcd_messages_received_total",
				Help: "Messages dequeued from queues",
			},
		),
		EntitiesActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ipcd_entities_active",
				Help: "Live IPC entities by kind",
			},
			[]string{"kind"},
		),
		ShmBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcd_shm_bytes",
				Help: "Bytes of live shared memory backing",
			},
		),
		ShmAttaches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcd_shm_attaches_total",
				Help: "Shared memory attach operations",
			},
		),
		ShmDetaches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcd_shm_detaches_total",
				Help: "Shared memory detach operations",
			},
		),
		SemaphoreWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipcd_semaphore_waits_total",
				Help: "Semaphore wait attempts by outcome",
			},
			[]string{"outcome"},
		),
		EventsPublished: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcd_events_published_total",
				Help: "Events appended to channels",
			},
		),
		EventsDelivered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipcd_events_delivered_total",
				Help: "Events drained by subscribers",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ipcd_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one syscall-surface request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMessage records an accepted send. kind is "inline" or "zero_copy".
func (m *Metrics) RecordMessage(kind string) {
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// RecordReceive records a successful dequeue.
func (m *Metrics) RecordReceive() {
	m.MessagesReceived.Inc()
}

// RecordSemaphoreWait records a wait attempt. outcome is "acquired" or
// "blocked".
func (m *Metrics) RecordSemaphoreWait(outcome string) {
	m.SemaphoreWaits.WithLabelValues(outcome).Inc()
}

// SetEntities sets the live entity count for a kind.
func (m *Metrics) SetEntities(kind string, count int) {
	m.EntitiesActive.WithLabelValues(kind).Set(float64(count))
}
