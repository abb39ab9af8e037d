package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/resilience"
)

// MetricsSnapshot is the JSON view of every component's metrics
type MetricsSnapshot struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Backend    monitoring.MetricsSnapshot `json:"backend"`
	Hub        hub.Stats                  `json:"hub"`
	Counters   map[string]int64           `json:"counters"`
	Sessions   int                        `json:"sessions"`
	Quarantine []resilience.BreakerStatus `json:"quarantine"`
	Summary    MetricsSummary             `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	ErrorRate         float64 `json:"error_rate"`
	ActiveConnections int64   `json:"active_connections"`
	QuarantinedNodes  int     `json:"quarantined_nodes"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// AggregatedMetrics returns backend, hub and supervisor metrics in one document
func (h *Handlers) AggregatedMetrics(c *gin.Context) {
	backend := h.metrics.Snapshot()
	breakers := h.surface.Breakers()

	// Only nodes that are currently refusing sessions
	quarantined := make([]resilience.BreakerStatus, 0, len(breakers))
	for _, b := range breakers {
		if b.State != resilience.StateClosed.String() {
			quarantined = append(quarantined, b)
		}
	}

	c.JSON(http.StatusOK, MetricsSnapshot{
		Timestamp:  time.Now(),
		Backend:    backend,
		Hub:        h.hub.Stats(),
		Counters:   h.hub.Snapshot().State.Metrics,
		Sessions:   len(h.surface.Sessions()),
		Quarantine: quarantined,
		Summary:    summarize(backend, len(quarantined)),
	})
}

func summarize(s monitoring.MetricsSnapshot, quarantined int) MetricsSummary {
	summary := MetricsSummary{
		TotalRequests:     s.TotalRequests,
		ActiveConnections: s.ActiveConnections,
		QuarantinedNodes:  quarantined,
		UptimeSeconds:     s.UptimeSeconds,
	}
	if s.RequestCount > 0 {
		summary.AverageLatencyMs = s.TotalDuration / float64(s.RequestCount) * 1000
	}
	if s.TotalRequests > 0 {
		summary.ErrorRate = float64(s.TotalErrors) / float64(s.TotalRequests) * 100
	}
	return summary
}
