// internal/observability/metrics.go
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus instruments for the telemetry core.
// All methods are nil-safe so components can run without metrics wired.
type Metrics struct {
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestTotal       *prometheus.CounterVec
	alertsRaised      *prometheus.CounterVec
	alertsSuppressed  prometheus.Counter
	alertTransitions  *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepAlerts       prometheus.Counter
	notifyTotal       *prometheus.CounterVec
	notifyQueueDepth  prometheus.Gauge
}

// NewMetrics builds and registers all instruments on the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_readings_ingested_total",
			Help: "Total readings processed by the ingest pipeline, by outcome.",
		}, []string{"outcome"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_alerts_raised_total",
			Help: "Total alerts created, by alert type.",
		}, []string{"type"}),
		alertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_alerts_suppressed_total",
			Help: "Total raise attempts suppressed by the active-alert dedup.",
		}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_alert_transitions_total",
			Help: "Total alert lifecycle transitions, by target status.",
		}, []string{"to"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_sweep_duration_seconds",
			Help:    "Histogram of offline sweep pass durations.",
			Buckets: prometheus.DefBuckets,
		}),
		sweepAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_sweep_alerts_created_total",
			Help: "Total offline alerts created by sweep passes.",
		}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_notify_publish_total",
			Help: "Total alert notifications published, by result.",
		}, []string{"result"}),
		notifyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_notify_queue_depth",
			Help: "Current depth of the notifier publish queue.",
		}),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestTotal,
		m.alertsRaised,
		m.alertsSuppressed,
		m.alertTransitions,
		m.sweepDuration,
		m.sweepAlerts,
		m.notifyTotal,
		m.notifyQueueDepth,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and duration for one route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes the default registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IngestOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AlertRaised(alertType string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType).Inc()
}

func (m *Metrics) AlertSuppressed() {
	if m == nil {
		return
	}
	m.alertsSuppressed.Inc()
}

func (m *Metrics) AlertTransition(to string) {
	if m == nil {
		return
	}
	m.alertTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) SweepPass(duration time.Duration, alertsCreated int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepAlerts.Add(float64(alertsCreated))
}

func (m *Metrics) NotifyResult(result string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetNotifyQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.notifyQueueDepth.Set(float64(depth))
}
