package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raksha"

// Metrics holds the process collectors. It satisfies the observer
// interfaces of the capture manager, the fan-out, the gateway breakers and
// the emergency machine.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	triggersTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	emergencyActive  prometheus.Gauge
	locationDegraded prometheus.Counter

	attemptsTotal *prometheus.CounterVec

	compactionsTotal   prometheus.Counter
	compactedBytes     prometheus.Counter
	clipUploadsTotal   *prometheus.CounterVec
	clipUploadBytes    prometheus.Histogram
	breakerState       *prometheus.GaugeVec
	breakerRejections  *prometheus.CounterVec
	livestreamViewers  prometheus.Gauge
	retentionDeletions prometheus.Counter
}

// New registers every collector on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		triggersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Emergency triggers by source and outcome (accepted, folded)",
			},
			[]string{"source", "outcome"},
		),
		transitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Emergency state machine transitions by target state",
			},
			[]string{"state"},
		),
		emergencyActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_active",
			Help:      "1 while an alert is unresolved",
		}),
		locationDegraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_degraded_total",
			Help:      "Alerts created with the placeholder location",
		}),

		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_attempts_total",
				Help:      "Settled notification attempts by channel and result",
			},
			[]string{"channel", "result"},
		),

		compactionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_compacted_chunks_total",
			Help:      "Capture chunks dropped by compaction",
		}),
		compactedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_compacted_bytes_total",
			Help:      "Capture bytes dropped by compaction",
		}),
		clipUploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clip_uploads_total",
				Help:      "Final clip uploads by result",
			},
			[]string{"result"},
		),
		clipUploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clip_upload_bytes",
			Help:      "Size of uploaded clips",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 8),
		}),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gateway_breaker_open",
				Help:      "1 while a gateway circuit breaker is open",
			},
			[]string{"gateway"},
		),
		breakerRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_breaker_rejections_total",
				Help:      "Sends refused by an open breaker",
			},
			[]string{"gateway"},
		),
		livestreamViewers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "livestream_viewers",
			Help:      "Viewers connected to the current livestream",
		}),
		retentionDeletions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_retention_deleted_total",
			Help:      "Clips removed by the retention job",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) TriggerAccepted(source string) {
	m.triggersTotal.WithLabelValues(source, "accepted").Inc()
}

func (m *Metrics) TriggerFolded(source string) {
	m.triggersTotal.WithLabelValues(source, "folded").Inc()
}

func (m *Metrics) Transition(state string) {
	m.transitionsTotal.WithLabelValues(state).Inc()
	switch state {
	case "active":
		m.emergencyActive.Set(1)
	case "idle":
		m.emergencyActive.Set(0)
	}
}

func (m *Metrics) LocationDegraded() { m.locationDegraded.Inc() }

func (m *Metrics) ClipUploaded(ok bool, bytes int) {
	if !ok {
		m.clipUploadsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.clipUploadsTotal.WithLabelValues("uploaded").Inc()
	m.clipUploadBytes.Observe(float64(bytes))
}

func (m *Metrics) ObserveAttempt(channel, result string) {
	m.attemptsTotal.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) ObserveCompaction(chunks int, bytes int64) {
	m.compactionsTotal.Add(float64(chunks))
	m.compactedBytes.Add(float64(bytes))
}

func (m *Metrics) BreakerState(name, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	m.breakerState.WithLabelValues(name).Set(open)
}

func (m *Metrics) BreakerRejected(name string) {
	m.breakerRejections.WithLabelValues(name).Inc()
}

// ViewerCount matches the hub's viewer observer signature.
func (m *Metrics) ViewerCount(_ string, viewers int) {
	m.livestreamViewers.Set(float64(viewers))
}

func (m *Metrics) RetentionDeleted(n int) {
	m.retentionDeletions.Add(float64(n))
}
