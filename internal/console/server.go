// Package console serves the agent console API: run control for the
// simulated agent, task history, statistics and settings, plus the
// websocket channel that keeps several consoles in sync.
package console

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"agentconsole/internal/agentrun"
	"agentconsole/internal/broadcast"
	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
	"agentconsole/internal/simulator"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server. Zero values fall back to in-memory defaults.
type Options struct {
	Context         Context
	Simulator       simulator.Config
	HistoryCapacity int
	SeedDemo        bool
	SettingsFile    string
	AllowedOrigins  []string
	StaticDir       string
	Production      bool
	Version         string

	Observability *observability.Observability
	Logger        logging.Logger
	// Registry receives keys published by channel peers. A private one is
	// created when nil.
	Registry *broadcast.Registry
	Now      func() time.Time
	Seed     int64
}

// Server owns the console's runs, history and settings and exposes them
// over HTTP.
type Server struct {
	console   Context
	store     *Store
	settings  *SettingsStore
	sim       *simulator.Simulator
	registry  *broadcast.Registry
	hub       *broadcast.Hub
	obs       *observability.Observability
	logger    logging.Logger
	engine    *gin.Engine
	version   string
	startedAt time.Time

	runCtx     context.Context
	cancelRuns context.CancelFunc
	closeOnce  sync.Once
}

// New wires the store, simulator, channel hub and routes.
func New(opts Options) (*Server, error) {
	logger := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	capacity := opts.HistoryCapacity
	if capacity <= 0 {
		capacity = 500
	}

	store, err := NewStore(capacity, now)
	if err != nil {
		return nil, err
	}
	settings, err := LoadSettings(opts.SettingsFile)
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if registry == nil {
		registry = broadcast.NewRegistry(logger)
	}

	var metrics *observability.MetricsCollector
	var tracer *observability.TracerProvider
	if opts.Observability != nil {
		metrics = opts.Observability.Metrics
		tracer = opts.Observability.Tracer
	}

	hub := broadcast.NewHub(registry, metrics, logger)
	registry.SetTransport(hub)

	runCtx, cancelRuns := context.WithCancel(context.Background())
	s := &Server{
		console:    opts.Context,
		store:      store,
		settings:   settings,
		registry:   registry,
		hub:        hub,
		obs:        opts.Observability,
		logger:     logger,
		version:    opts.Version,
		startedAt:  now(),
		runCtx:     runCtx,
		cancelRuns: cancelRuns,
	}

	sim, err := simulator.New(opts.Simulator, simulator.Options{
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
		OnStart:  s.store.AddLive,
		OnFinish: s.onRunFinished,
		Now:      now,
		Seed:     opts.Seed,
	})
	if err != nil {
		cancelRuns()
		return nil, err
	}
	s.sim = sim

	if opts.SeedDemo {
		seed := opts.Seed
		if seed == 0 {
			seed = now().UnixNano()
		}
		store.seed(demoTasks(now(), rand.New(rand.NewSource(seed))))
	}

	s.engine = s.buildEngine(opts)
	return s, nil
}

func (s *Server) buildEngine(opts Options) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(recoveryMiddleware(s.logger))
	engine.Use(observabilityMiddleware(s.obs, s.logger))

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s.registerRoutes(engine)

	if dir := strings.TrimSpace(opts.StaticDir); dir != "" {
		engine.Static("/assets", dir+"/assets")
		engine.StaticFile("/", dir+"/index.html")
	}
	engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not found")
	})
	return engine
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/metrics", gin.WrapH(s.metricsHandler()))

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/context", s.handleContext)
	api.GET("/channel", gin.WrapH(s.hub))

	run := api.Group("/agent/run")
	{
		run.POST("", s.requirePermission(PermRunControl), s.handleSubmit)
		run.GET("/:id/status", s.handleRunStatus)
		run.POST("/:id/stop", s.requirePermission(PermRunControl), s.handleRunStop)
		run.POST("/:id/pause", s.requirePermission(PermRunControl), s.handleRunPause)
		run.POST("/:id/resume", s.requirePermission(PermRunControl), s.handleRunResume)
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("", s.handleTasks)
		tasks.GET("/:id", s.handleTask)
		tasks.POST("/:id/stop", s.requirePermission(PermTaskControl), s.handleTaskStop)
	}

	stats := api.Group("/statistics")
	{
		stats.GET("", s.handleStatistics)
		stats.GET("/token-trend", s.handleTokenTrend)
		stats.GET("/task-analysis", s.handleTaskAnalysis)
	}

	settings := api.Group("/config")
	{
		settings.GET("/:section", s.handleGetSettings)
		settings.POST("/:section", s.requirePermission(PermSettingsWrite), s.handleUpdateSettings)
	}
}

func (s *Server) metricsHandler() http.Handler {
	if s.obs == nil {
		return http.NotFoundHandler()
	}
	return s.obs.Metrics.Handler()
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Registry returns the registry that receives channel keys.
func (s *Server) Registry() *broadcast.Registry {
	return s.registry
}

// Store exposes the run store.
func (s *Server) Store() *Store {
	return s.store
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Console listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down console server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return s.Close()
	})
	return g.Wait()
}

// Close aborts live runs and disconnects channel peers. It waits for run
// goroutines to finish.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cancelRuns()
		s.hub.Close()
		s.sim.Wait()
	})
	return nil
}

func (s *Server) onRunFinished(snap agentrun.RunSnapshot) {
	s.store.Finish(snap)
	s.publish(broadcast.KeyTasksChanged)
}

func (s *Server) publish(key string) {
	if err := s.registry.Publish(context.Background(), key); err != nil {
		s.logger.Debug("Publish %q failed: %v", key, err)
	}
}
