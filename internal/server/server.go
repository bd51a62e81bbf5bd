package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/GriffinCanCode/realmbridge/internal/api/http"
	"github.com/GriffinCanCode/realmbridge/internal/api/middleware"
	"github.com/GriffinCanCode/realmbridge/internal/hostapi"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/realmbridge/internal/proxify"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
	"github.com/GriffinCanCode/realmbridge/internal/session"
	"github.com/GriffinCanCode/realmbridge/internal/transport/ws"
)

type script struct {
	name   string
	source string
}

// Server hosts destination realms behind a websocket endpoint
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	router   *gin.Engine
	http     *http.Server
	pool     *realm.Pool
	sessions *session.Manager
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server and starts its realm pool
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing realm host",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("pool_size", cfg.Realm.PoolSize),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	scripts, err := loadScripts(cfg.Realm.Scripts)
	if err != nil {
		return nil, err
	}
	if len(scripts) > 0 {
		logger.Info("Loaded realm scripts", zap.Int("count", len(scripts)))
	}

	xhr := hostapi.DefaultConfig()
	xhr.Timeout = cfg.XHR.Timeout
	xhr.UserAgent = cfg.XHR.UserAgent
	xhr.Logger = logger.Component("xhr")

	realmCfg := realm.Config{
		Name:             "destination",
		Timeout:          cfg.Realm.Timeout,
		MaxCallStackSize: cfg.Realm.MaxCallStackSize,
		EnableConsole:    cfg.Realm.Console,
		Metrics:          metrics,
		Init: func(r *realm.Realm) error {
			if cfg.XHR.Enabled {
				if err := hostapi.InstallXHR(r, xhr); err != nil {
					return err
				}
			}
			for _, s := range scripts {
				if _, err := r.VM().RunScript(s.name, s.source); err != nil {
					return fmt.Errorf("run %s: %w", s.name, err)
				}
			}
			return nil
		},
	}

	pool, err := realm.NewPool(realmCfg, cfg.Realm.PoolSize, logger.Component("realm"))
	if err != nil {
		return nil, fmt.Errorf("start realm pool: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		logger:   logger,
		router:   router,
		pool:     pool,
		sessions: session.NewManager(),
		metrics:  metrics,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Realm host initialized")
	return s, nil
}

func (s *Server) routes() {
	h := handlers.NewHandlers(s.pool, s.sessions)

	s.router.GET("/health", h.Health)
	s.router.GET("/sessions", h.ListSessions)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	realmRoute := []gin.HandlerFunc{}
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		limit.Burst = s.config.RateLimit.Burst
		realmRoute = append(realmRoute, middleware.RateLimit(limit, s.logger.Component("ratelimit")))
	}
	realmRoute = append(realmRoute, s.handleRealm)
	s.router.GET("/realm", realmRoute...)
}

// handleRealm upgrades the request and serves one bridge session on a
// pooled realm until either side closes the link.
func (s *Server) handleRealm(c *gin.Context) {
	acquireCtx, cancel := context.WithTimeout(c.Request.Context(), s.config.Bridge.RequestTimeout)
	r, err := s.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		s.logger.Warn("No realm available", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no realm available"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("Upgrade failed", zap.Error(err))
		s.release(r)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	sess := s.sessions.Open(r.ID(), c.ClientIP())
	s.metrics.SessionOpened()
	log := s.logger.Component("session").With(
		zap.String("session", sess.ID.String()),
		zap.String("realm", r.Name()),
	)
	log.Info("Session opened", zap.String("remote", sess.Remote))

	peer := ws.NewPeer(conn, r,
		ws.WithName("destination"),
		ws.WithLogger(log),
		ws.WithMetrics(s.metrics),
		ws.WithRequestTimeout(s.config.Bridge.RequestTimeout),
		ws.WithReadLimit(s.config.Bridge.MaxMessageBytes),
		ws.WithBreaker(resilience.Settings{
			MaxFailures: s.config.Bridge.BreakerFailures,
			Cooldown:    s.config.Bridge.BreakerCooldown,
		}),
	)
	dest := proxify.NewDestination(r, peer,
		proxify.WithLogger(log),
		proxify.WithMetrics(s.metrics),
		proxify.WithRequestTimeout(s.config.Bridge.RequestTimeout),
	)
	peer.Bind(dest)

	if err := peer.Run(s.ctx); err != nil {
		log.Warn("Session ended with error", zap.Error(err))
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	if err := r.Do(closeCtx, dest.Close); err != nil {
		log.Debug("Destination not closed", zap.Error(err))
	}
	cancelClose()

	s.release(r)
	s.sessions.Close(sess.ID)
	s.metrics.SessionClosed()
	log.Info("Session closed")
}

func (s *Server) release(r *realm.Realm) {
	if err := s.pool.Release(r); err != nil {
		s.logger.Warn("Realm release failed", zap.String("realm", r.Name()), zap.Error(err))
	}
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the live session registry
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends the open sessions and closes the
// realm pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Sessions still open at shutdown", zap.Int("active", s.sessions.Stats().Active))
	}

	if cerr := s.pool.Close(); cerr != nil && err == nil {
		err = cerr
	}

	_ = s.logger.Sync()
	return err
}

// loadScripts reads every file matching pattern in lexical order
func loadScripts(pattern string) ([]script, error) {
	if pattern == "" {
		return nil, nil
	}

	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("realm scripts %q: %w", pattern, err)
	}
	sort.Strings(paths)

	scripts := make([]script, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read realm script: %w", err)
		}
		scripts = append(scripts, script{name: path, source: string(data)})
	}
	return scripts, nil
}
