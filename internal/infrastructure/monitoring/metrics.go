package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline session metrics
	SessionsActive  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	ForcedKills     prometheus.Counter
	SessionDuration prometheus.Histogram

	// State hub metrics
	HubDeltas        *prometheus.CounterVec
	HubSubscribers   prometheus.Gauge
	HubDropped       prometheus.Counter
	HubRejected      *prometheus.CounterVec
	StatePersisted   *prometheus.CounterVec
	MediaBytes       *prometheus.CounterVec
	MediaViewers     prometheus.Gauge
	MediaViewersDrop prometheus.Counter

	// WebSocket metrics
	WSConnections *prometheus.GaugeVec
	WSMessages    *prometheus.CounterVec

	// Host metrics
	HostCPU    prometheus.Gauge
	HostMemory prometheus.Gauge

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveSessions    int64   `json:"active_sessions"`
	ActiveConnections int64   `json:"active_connections"`
	TotalDuration     float64 `json:"total_duration"` // sum of all request durations
	RequestCount      int64   `json:"request_count"`  // count for averaging
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Pipeline session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_pipeline_sessions_active",
				Help: "Number of live pipeline sessions",
			},
		),
		SessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_pipeline_events_total",
				Help: "Pipeline lifecycle events by kind and reason",
			},
			[]string{"event", "reason"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_pipeline_spawn_failures_total",
				Help: "Pipeline processes that could not be started",
			},
		),
		ForcedKills: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_pipeline_forced_kills_total",
				Help: "Pipeline processes killed after the grace period",
			},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nexus_pipeline_session_duration_seconds",
				Help:    "Lifetime of pipeline sessions in seconds",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
			},
		),

		// State hub metrics
		HubDeltas: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_hub_deltas_total",
				Help: "State deltas applied per key",
			},
			[]string{"key"},
		),
		HubSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_hub_subscribers",
				Help: "Number of connected state subscribers",
			},
		),
		HubDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_hub_subscribers_dropped_total",
				Help: "Subscribers dropped because their queue overflowed",
			},
		),
		HubRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_hub_rejected_total",
				Help: "State mutations rejected by reason",
			},
			[]string{"reason"},
		),
		StatePersisted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_state_persist_total",
				Help: "State persistence attempts by status",
			},
			[]string{"status"},
		),
		MediaBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_media_bytes_total",
				Help: "Media bytes relayed per node",
			},
			[]string{"node"},
		),
		MediaViewers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_media_viewers",
				Help: "Number of attached media viewers",
			},
		),
		MediaViewersDrop: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_media_viewers_dropped_total",
				Help: "Media viewers dropped because they fell behind",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_ws_connections",
				Help: "Number of active WebSocket connections",
			},
			[]string{"stream"},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// Host metrics
		HostCPU: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_host_cpu_percent",
				Help: "Host CPU utilisation percent",
			},
		),
		HostMemory: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_host_memory_percent",
				Help: "Host memory utilisation percent",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nexus_uptime_seconds",
			Help: "Control plane uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this collector
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSessionEvent records one pipeline lifecycle event
func (m *Metrics) RecordSessionEvent(event, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.SessionEvents.WithLabelValues(event, reason).Inc()
}

// RecordSessionClosed records the lifetime of a finished session
func (m *Metrics) RecordSessionClosed(lifetime time.Duration) {
	m.SessionDuration.Observe(lifetime.Seconds())
}

// IncSpawnFailures increments the spawn failure counter
func (m *Metrics) IncSpawnFailures() {
	m.SpawnFailures.Inc()
}

// IncForcedKills increments the forced kill counter
func (m *Metrics) IncForcedKills() {
	m.ForcedKills.Inc()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordDelta records one applied state mutation
func (m *Metrics) RecordDelta(key string) {
	m.HubDeltas.WithLabelValues(key).Inc()
}

// RecordRejected records a rejected state mutation
func (m *Metrics) RecordRejected(reason string) {
	m.HubRejected.WithLabelValues(reason).Inc()
}

// SetHubSubscribers sets the number of state subscribers
func (m *Metrics) SetHubSubscribers(count int) {
	m.HubSubscribers.Set(float64(count))
}

// IncHubDropped increments the dropped subscriber counter
func (m *Metrics) IncHubDropped() {
	m.HubDropped.Inc()
}

// RecordPersist records a persistence attempt
func (m *Metrics) RecordPersist(status string) {
	m.StatePersisted.WithLabelValues(status).Inc()
}

// AddMediaBytes adds relayed bytes for a node
func (m *Metrics) AddMediaBytes(node string, n int) {
	m.MediaBytes.WithLabelValues(node).Add(float64(n))
}

// SetMediaViewers sets the number of attached media viewers
func (m *Metrics) SetMediaViewers(count int) {
	m.MediaViewers.Set(float64(count))
}

// IncMediaViewersDropped increments the dropped viewer counter
func (m *Metrics) IncMediaViewersDropped() {
	m.MediaViewersDrop.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections(stream string) {
	m.WSConnections.WithLabelValues(stream).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections(stream string) {
	m.WSConnections.WithLabelValues(stream).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// SetHost records host utilisation percentages
func (m *Metrics) SetHost(cpuPercent, memPercent float64) {
	m.HostCPU.Set(cpuPercent)
	m.HostMemory.Set(memPercent)
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
