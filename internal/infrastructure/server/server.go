package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/nexus/backend/internal/api/http"
	"github.com/GriffinCanCode/nexus/backend/internal/api/middleware"
	"github.com/GriffinCanCode/nexus/backend/internal/api/ws"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/control"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/hub"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/media"
	"github.com/GriffinCanCode/nexus/backend/internal/domain/supervisor"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/notify"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/nexus/backend/internal/shared/types"
)

const redisDialTimeout = 3 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	hub       *hub.Hub
	relay     *media.Relay
	surface   *control.Surface
	inventory *catalog.Inventory
	webhook   *notify.Webhook       // nil when no webhook is configured
	store     persistence.BlobStore // nil when persistence is disabled
	mirror    *persistence.Mirror   // nil when persistence is disabled
	sampler   *monitoring.SystemSampler
	router    *gin.Engine
	http      *http.Server

	wg sync.WaitGroup
}

// NewServer creates a new server instance. Persisted state is restored
// before the server starts serving.
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing Nexus control plane",
		zap.String("port", cfg.Server.Port),
		zap.String("pipeline_binary", cfg.Pipeline.Binary),
		zap.Bool("pty", cfg.Pipeline.UsePTY),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("control-plane", logger.Component("tracing"))

	h := hub.New(hub.Options{
		QueueSize: cfg.Hub.QueueSize,
		Logger:    logger.Component("hub"),
	}).WithMetrics(metrics)

	relay := media.NewRelay(media.Options{
		QueueSize: cfg.Media.QueueSize,
		Logger:    logger.Component("media"),
	}).WithMetrics(metrics)

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		hub:     h,
		relay:   relay,
	}

	// Node inventory (optional)
	if cfg.Catalog.NodesFile != "" {
		inv, err := catalog.LoadInventory(cfg.Catalog.NodesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load node inventory: %w", err)
		}
		s.inventory = inv
		logger.Info("Node inventory loaded",
			zap.String("file", cfg.Catalog.NodesFile),
			zap.Int("nodes", len(inv.List())))
	}

	// Lifecycle webhook (optional)
	surfaceOpts := control.Options{
		GracePeriod:    cfg.Pipeline.GracePeriod,
		ReplaceWait:    cfg.Pipeline.ReplaceWait,
		CrashThreshold: cfg.Pipeline.CrashThreshold,
		Quarantine:     cfg.Pipeline.QuarantinePeriod,
		Logger:         logger.Component("control"),
	}
	if cfg.Notify.WebhookURL != "" {
		s.webhook = notify.NewWebhook(notify.Options{
			URL:        cfg.Notify.WebhookURL,
			Timeout:    cfg.Notify.Timeout,
			MaxRetries: cfg.Notify.MaxRetries,
			Logger:     logger.Component("notify"),
		})
		surfaceOpts.Notifier = s.webhook
		logger.Info("Lifecycle webhook enabled", zap.String("url", cfg.Notify.WebhookURL))
	}

	s.surface = control.New(newLauncher(cfg.Pipeline), h, relay, surfaceOpts).WithMetrics(metrics)

	// State persistence (optional)
	if err := s.initPersistence(ctx); err != nil {
		return nil, err
	}

	s.sampler = monitoring.NewSystemSampler(cfg.System.SampleInterval, logger.Component("system")).
		WithMetrics(metrics).
		OnSample(s.publishHostSample)

	s.router = s.newRouter()
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func newLauncher(cfg config.PipelineConfig) supervisor.Launcher {
	if cfg.UsePTY {
		return supervisor.NewPTYLauncher(cfg.Binary, supervisor.PassthroughArgs)
	}
	return supervisor.NewExecLauncher(cfg.Binary)
}

func (s *Server) initPersistence(ctx context.Context) error {
	cfg := s.config.Storage
	if cfg.RedisAddr == "" {
		s.logger.Info("State persistence disabled")
		return nil
	}

	store := persistence.NewRedisStore(persistence.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		s.logger.Warn("Redis unavailable, state persistence disabled",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
		return nil
	}

	mirror := persistence.NewMirror(s.hub, store, persistence.MirrorOptions{
		Key:           cfg.Key,
		FlushInterval: cfg.FlushInterval,
		Logger:        s.logger.Component("persistence"),
	}).WithMetrics(s.metrics)

	st, ok, err := mirror.Load(ctx)
	if err != nil {
		// A corrupt or newer record must not block startup
		s.logger.Warn("Failed to load persisted state, starting empty", zap.Error(err))
	} else if ok {
		if err := s.hub.Restore(st); err != nil {
			store.Close()
			return fmt.Errorf("failed to restore state: %w", err)
		}
	}

	s.store = store
	s.mirror = mirror
	s.logger.Info("State persistence enabled", zap.String("addr", cfg.RedisAddr), zap.String("key", cfg.Key))
	return nil
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.Origins...)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandlers(apihttp.Deps{
		Surface:    s.surface,
		Hub:        s.hub,
		Relay:      s.relay,
		Inventory:  s.inventory,
		Metrics:    s.metrics,
		CaptureDir: cfg.Catalog.CaptureDir,
		StreamPath: cfg.Pipeline.DefaultStreamPath,
		Logger:     s.logger.Component("api"),
	}).Register(router)

	ws.NewHandler(s.hub, s.relay, ws.Options{
		Origins: cfg.CORS.Origins,
		Metrics: s.metrics,
		Logger:  s.logger.Component("ws"),
	}).Register(router)

	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches background workers, merges capture artifacts and
// establishes autostart nodes
func (s *Server) Start(ctx context.Context) {
	s.spawn(func() { s.sampler.Run(ctx) })
	if s.webhook != nil {
		s.spawn(func() { s.webhook.Run(ctx) })
	}
	if s.mirror != nil {
		// The mirror outlives ctx and stops when Shutdown closes the hub, so
		// its final copy includes the terminated pipelines
		s.spawn(func() {
			if err := s.mirror.Run(context.WithoutCancel(ctx)); err != nil {
				s.logger.Error("State mirror stopped", zap.Error(err))
			}
		})
	}

	if dir := s.config.Catalog.CaptureDir; dir != "" {
		if _, err := s.surface.SyncCaptures(ctx, dir); err != nil {
			s.logger.Warn("Capture scan failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	if s.inventory != nil {
		nodes := s.inventory.Autostart()
		started := s.surface.Autostart(ctx, nodes)
		s.logger.Info("Autostart complete", zap.Int("requested", len(nodes)), zap.Int("started", started))
	}
}

func (s *Server) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Run starts the HTTP server and blocks until it stops. It returns nil
// after Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))

	var err error
	if s.config.Server.TLSCert != "" && s.config.Server.TLSKey != "" {
		err = s.http.ListenAndServeTLS(s.config.Server.TLSCert, s.config.Server.TLSKey)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, terminates every pipeline and flushes
// state. Background workers must already be cancelled through the context
// given to Start.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := s.surface.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
	}
	s.surface.Wait()

	// Closing the hub ends viewer streams and makes the mirror write its
	// final copy
	s.hub.Close()
	s.relay.Close()
	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	s.tracer.Close()

	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// publishHostSample feeds host utilisation into the metrics key
func (s *Server) publishHostSample(sample monitoring.HostSample) {
	_, err := s.hub.MergeMetrics(map[string]int64{
		types.CounterCPUUsage:    int64(sample.CPUPercent + 0.5),
		types.CounterMemoryUsage: int64(sample.MemoryPercent + 0.5),
	})
	if err != nil && !errors.Is(err, hub.ErrClosed) {
		s.logger.Warn("Failed to publish host sample", zap.Error(err))
	}
}
