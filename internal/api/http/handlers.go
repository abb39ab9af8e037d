package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/control"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/media"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
)

const (
	serviceName    = "Nexus Control Plane (Go)"
	serviceVersion = "0.3.0"
)

// Deps are the collaborators the handlers route into
type Deps struct {
	Surface   *control.Surface
	Hub       *hub.Hub
	Relay     *media.Relay
	Inventory *catalog.Inventory // optional
	Metrics   *monitoring.Metrics
	// CaptureDir is scanned by POST /captures/sync; empty disables the route
	CaptureDir string
	// StreamPath is used for ad-hoc nodes established by IP
	StreamPath string
	Logger     *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	surface    *control.Surface
	hub        *hub.Hub
	relay      *media.Relay
	inventory  *catalog.Inventory
	metrics    *monitoring.Metrics
	captureDir string
	streamPath string
	logger     *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		surface:    d.Surface,
		hub:        d.Hub,
		relay:      d.Relay,
		inventory:  d.Inventory,
		metrics:    d.Metrics,
		captureDir: d.CaptureDir,
		streamPath: d.StreamPath,
		logger:     logger,
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Pipeline sessions
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:node", h.GetSession)
	r.POST("/sessions/:node", h.EstablishSession)
	r.DELETE("/sessions/:node", h.TerminateSession)
	r.GET("/events", h.ListEvents)

	// Crash-loop quarantine
	r.GET("/quarantine", h.ListQuarantine)
	r.DELETE("/quarantine/:node", h.ResetQuarantine)

	// Operational state
	r.GET("/state", h.GetState)
	r.GET("/state/:key", h.GetStateKey)
	r.PUT("/state/:key", h.PutStateKey)

	r.GET("/nodes", h.ListNodes)
	r.GET("/media/:node/stats", h.MediaStats)
	r.POST("/captures/sync", h.SyncCaptures)

	// Dashboard logs
	r.POST("/logs", h.StreamLogs)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
		r.GET("/metrics/json", h.AggregatedMetrics)
	}
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": len(h.surface.Sessions()),
		"hub":      h.hub.Stats(),
	})
}
