package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forward modes.
const (
	ModeBlocking = "blocking"
	ModeAsync    = "async"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Forwarding metrics
	ForwardsTotal   *prometheus.CounterVec
	ForwardDuration *prometheus.HistogramVec

	// Proxy object metrics
	ObjectsLive    *prometheus.GaugeVec
	ObjectsCreated *prometheus.CounterVec
	EventsReplayed *prometheus.CounterVec

	// Realm host metrics
	RealmsActive prometheus.Gauge
	Sessions     prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	startTime time.Time
}

// NewMetrics creates a new metrics collector registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		ForwardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmbridge_forwards_total",
				Help: "Total number of forwarded commands",
			},
			[]string{"direction", "kind", "mode", "status"},
		),
		ForwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "realmbridge_forward_duration_seconds",
				Help:    "Time from issuing a forward until its result is available",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"direction", "kind", "mode"},
		),

		ObjectsLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "realmbridge_objects_live",
				Help: "Number of live proxy objects per side and type",
			},
			[]string{"side", "type"},
		),
		ObjectsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmbridge_objects_created_total",
				Help: "Total number of proxy objects created per side and type",
			},
			[]string{"side", "type"},
		),
		EventsReplayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmbridge_events_replayed_total",
				Help: "Events delivered to origin handlers and listeners",
			},
			[]string{"type", "kind"},
		),

		RealmsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "realmbridge_realms_active",
				Help: "Number of running realms",
			},
		),
		Sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "realmbridge_sessions_active",
				Help: "Number of connected realm host sessions",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "realmbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}

// RecordForward records one forwarded command.
func (m *Metrics) RecordForward(direction, kind, mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ForwardsTotal.WithLabelValues(direction, kind, mode, status).Inc()
	m.ForwardDuration.WithLabelValues(direction, kind, mode).Observe(duration.Seconds())
}

// ObjectCreated records a new proxy object on one side of the bridge.
func (m *Metrics) ObjectCreated(side, typeName string) {
	if m == nil {
		return
	}
	m.ObjectsCreated.WithLabelValues(side, typeName).Inc()
	m.ObjectsLive.WithLabelValues(side, typeName).Inc()
}

// ObjectsDeleted records n proxy objects leaving one side of the bridge.
func (m *Metrics) ObjectsDeleted(side, typeName string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ObjectsLive.WithLabelValues(side, typeName).Sub(float64(n))
}

// EventReplayed records an event delivered on the origin side.
func (m *Metrics) EventReplayed(typeName, kind string) {
	if m == nil {
		return
	}
	m.EventsReplayed.WithLabelValues(typeName, kind).Inc()
}

// RealmStarted increments the running realm gauge.
func (m *Metrics) RealmStarted() {
	if m == nil {
		return
	}
	m.RealmsActive.Inc()
}

// RealmStopped decrements the running realm gauge.
func (m *Metrics) RealmStopped() {
	if m == nil {
		return
	}
	m.RealmsActive.Dec()
}

// SessionOpened increments the session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
}

// SessionClosed decrements the session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.Sessions.Dec()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Uptime returns time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
