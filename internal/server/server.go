package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pagetools/internal/analysis"
	api "github.com/GriffinCanCode/pagetools/internal/api/http"
	"github.com/GriffinCanCode/pagetools/internal/api/middleware"
	"github.com/GriffinCanCode/pagetools/internal/executor"
	"github.com/GriffinCanCode/pagetools/internal/fetch"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/config"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/pagetools/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/pagetools/internal/memo"
	"github.com/GriffinCanCode/pagetools/internal/pool"
	"github.com/GriffinCanCode/pagetools/internal/shared/hash"
	"github.com/GriffinCanCode/pagetools/internal/task"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	executor *executor.Executor
	pool     *pool.Pool
	registry *analysis.Registry
	cache    *memo.Cache
	backend  *analysis.RemoteBackend
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewServerWithLogger(cfg, logger)
}

// NewServerWithLogger creates a server that logs to logger
func NewServerWithLogger(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	logger.Info("Initializing PageTools server",
		zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.Int("workers", cfg.Executor.Workers),
		zap.String("inference_url", cfg.Inference.URL),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	backend, err := analysis.NewRemoteBackend(analysis.RemoteConfig{
		BaseURL:           cfg.Inference.URL,
		Token:             cfg.Inference.Token,
		Timeout:           cfg.Inference.Timeout,
		RequestsPerSecond: cfg.Inference.RequestsPerSecond,
		Breaker: resilience.Settings{
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}
	backend.WithMetrics(metrics)

	overrides, err := loadOverrides(cfg.Inference.OperationsFile)
	if err != nil {
		return nil, err
	}
	registry := analysis.NewRegistry()
	if err := analysis.RegisterDefaults(registry, backend, overrides...); err != nil {
		return nil, fmt.Errorf("failed to register operations: %w", err)
	}
	logger.Info("Analysis operations registered", zap.Int("count", len(registry.List())))

	fetcher := fetch.New(fetch.Config{
		UserAgent:         cfg.Fetch.UserAgent,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		TickInterval:      cfg.Fetch.TickInterval,
	}, logger).WithMetrics(metrics)

	cache := memo.New(cfg.Cache.Capacity).
		WithHasher(hash.NewHasher(hash.Algorithm(cfg.Cache.Algorithm))).
		WithLogger(logger).
		WithMetrics(metrics)

	workers := pool.New(cfg.Executor.Workers, cfg.Executor.QueueSize, logger)

	exec := executor.New(executor.Config{
		DefaultRetry: task.RetryPolicy{
			MaxAttempts:    cfg.Fetch.MaxAttempts,
			BaseBackoff:    cfg.Fetch.BaseBackoff,
			JitterFraction: cfg.Fetch.JitterFraction,
		},
		DefaultTimeout: cfg.Fetch.Timeout,
		Retention:      cfg.Executor.Retention,
	}, workers, fetcher, registry, cache, logger).WithMetrics(metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := api.NewHandlers(exec, registry, metrics, logger).WithStats(api.StatsSource{
		Cache: cache.Stats,
		Pool: func() api.PoolStats {
			return api.PoolStats{Workers: workers.Workers(), Active: workers.Active(), Queued: workers.Queued()}
		},
		Breaker: func() string { return backend.Breaker().State().String() },
	})
	handlers.Register(router)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		router:   router,
		http:     httpServer,
		executor: exec,
		pool:     workers,
		registry: registry,
		cache:    cache,
		backend:  backend,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// loadOverrides converts the operations file into registry specs
func loadOverrides(path string) ([]analysis.Spec, error) {
	ops, err := config.LoadOperations(path)
	if err != nil {
		return nil, err
	}
	specs := make([]analysis.Spec, 0, len(ops))
	for _, op := range ops {
		specs = append(specs, analysis.Spec{
			Name:        op.Name,
			Model:       op.Model,
			Input:       analysis.InputKind(op.Input),
			Description: op.Description,
			Required:    op.Required,
		})
	}
	return specs, nil
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Executor returns the task executor
func (s *Server) Executor() *executor.Executor {
	return s.executor
}

// Run starts the HTTP listener and blocks until it stops. It returns nil
// after a Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the listener, cancels live tasks and drains the pool
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.executor.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor close: %w", err))
	}
	discarded := s.pool.Stop()
	if discarded > 0 {
		s.logger.Warn("Discarded queued jobs", zap.Int("count", discarded))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
