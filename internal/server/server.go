// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/risklens/internal/audit"
	"github.com/mbd888/risklens/internal/config"
	"github.com/mbd888/risklens/internal/health"
	"github.com/mbd888/risklens/internal/logging"
	"github.com/mbd888/risklens/internal/metrics"
	"github.com/mbd888/risklens/internal/ml"
	"github.com/mbd888/risklens/internal/ratelimit"
	"github.com/mbd888/risklens/internal/realtime"
	"github.com/mbd888/risklens/internal/replay"
	"github.com/mbd888/risklens/internal/risk"
	"github.com/mbd888/risklens/internal/scoring"
	"github.com/mbd888/risklens/internal/security"
	"github.com/mbd888/risklens/internal/traces"
	"github.com/mbd888/risklens/internal/validation"
)

// Version is reported by the status and health endpoints.
const Version = "0.1.0"

const (
	auditQueueDepth  = 1024
	memoryAuditLimit = 5000
	maxRequestIDLen  = 64
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	engine       *risk.Engine
	predictor    *ml.Predictor
	scorer       ml.Scorer
	scoring      *scoring.Service
	source       replay.Source
	streamer     *replay.Streamer
	replay       *realtime.ReplayHandler
	hub          *realtime.Hub
	auditStore   audit.Store
	recorder     *audit.Recorder
	health       *health.Registry
	origins      *security.OriginPolicy
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer installs a model instead of loading MODEL_PATH (for testing)
func WithScorer(scorer ml.Scorer) Option {
	return func(s *Server) {
		s.scorer = scorer
	}
}

// WithDatasetSource replaces the CSV replay dataset (for testing)
func WithDatasetSource(src replay.Source) Option {
	return func(s *Server) {
		s.source = src
	}
}

// WithAuditStore replaces the audit store chosen from DATABASE_URL
func WithAuditStore(store audit.Store) Option {
	return func(s *Server) {
		s.auditStore = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine = risk.NewEngine()
	s.origins = security.NewOriginPolicy(cfg.AllowedOrigins)
	s.health = health.NewRegistry()

	// Scorer: an explicit one wins, otherwise the artifact on disk. Without
	// either the service runs in simulation mode.
	if s.scorer != nil {
		s.predictor = ml.NewPredictor(s.scorer)
	} else {
		s.predictor = ml.NewPredictor(nil)
		if err := s.predictor.LoadFile(cfg.ModelPath); err != nil {
			s.logger.Warn("model unavailable, running in simulation mode",
				"path", cfg.ModelPath,
				"error", err,
			)
		} else {
			s.logger.Info("model loaded", "path", cfg.ModelPath)
		}
	}

	// Audit storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.auditStore == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			s.auditStore = audit.NewPostgresStore(db)
			s.logger.Info("using PostgreSQL audit storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.auditStore = audit.NewMemoryStore(memoryAuditLimit)
			s.logger.Info("using in-memory audit storage")
		}
	}
	s.recorder = audit.NewRecorder(s.auditStore, s.logger, auditQueueDepth)

	// Live feed and scoring
	s.hub = realtime.NewHub(s.logger, s.origins.CheckOrigin)
	s.scoring = scoring.NewService(s.engine, s.predictor).
		WithPublisher(s.hub).
		WithAuditor(s.recorder)

	// Replay
	if s.source == nil {
		s.source = replay.NewCSVSource(cfg.DatasetPath)
	}
	s.streamer = replay.NewStreamer(s.source, s.engine, risk.NewNormalizer()).
		WithInterval(cfg.ReplayInterval).
		WithSampleSize(cfg.ReplaySampleSize)
	s.replay = realtime.NewReplayHandler(s.streamer, s.logger, s.origins.CheckOrigin)

	s.registerHealthChecks()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) registerHealthChecks() {
	s.health.RegisterOptional("scorer", func(context.Context) health.Status {
		if !s.predictor.Available() {
			return health.Status{Detail: "simulation mode"}
		}
		return health.Status{Healthy: true, Detail: s.predictor.Origin()}
	})

	// A missing dataset only affects replay; live scoring keeps serving.
	s.health.RegisterOptional("dataset", func(ctx context.Context) health.Status {
		if !s.source.Available(ctx) {
			return health.Status{Detail: s.source.Name() + " missing"}
		}
		return health.Status{Healthy: true, Detail: s.source.Name()}
	})

	if s.db != nil {
		s.health.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		})
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(s.origins.CORSMiddleware())
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = s.cfg.RateLimitRPM
	rl.BurstSize = s.cfg.RateLimitBurst
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(traces.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := validation.SanitizeString(c.GetHeader("X-Request-ID"), maxRequestIDLen)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
		}

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/", s.statusHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live scoring
	scoring.NewHandler(s.scoring).RegisterRoutes(s.router)

	// WebSockets: paced replay and the live verdict feed
	s.router.GET("/ws/stream", gin.WrapH(s.replay))
	s.router.GET("/ws/feed", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	{
		v1.GET("/verdicts", s.listVerdictsHandler)
		v1.GET("/feed/stats", s.feedStatsHandler)
		v1.POST("/model/reload", s.reloadModelHandler)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// startWorkers launches the feed hub and the audit writer.
func (s *Server) startWorkers(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.recorder.Run(ctx)
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"mode", s.scoring.Mode(),
			"dataset", s.source.Name(),
			"replay_interval", s.cfg.ReplayInterval.String(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startWorkers(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Replay sessions get a going-away close before the listener stops.
	s.replay.Shutdown()

	// Give load balancers time to stop sending traffic
	if s.drainDelay > 0 {
		time.Sleep(s.drainDelay)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	// Stop the hub and flush queued audit entries
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
		select {
		case <-s.recorder.Done():
			s.logger.Info("audit recorder flushed")
		case <-ctx.Done():
			s.logger.Warn("audit recorder did not flush before deadline")
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
