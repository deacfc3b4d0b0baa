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

	apihttp "github.com/GriffinCanCode/api-diagnostics/internal/api/http"
	"github.com/GriffinCanCode/api-diagnostics/internal/api/middleware"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/index"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/search"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/config"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/logging"
	"github.com/GriffinCanCode/api-diagnostics/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/api-diagnostics/internal/storage/logstore"
)

const shutdownTimeout = 5 * time.Second

// Server wraps the HTTP server and its dependencies
type Server struct {
	router  *gin.Engine
	store   *logstore.Store
	index   *index.Index
	logger  *zap.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New creates a server over an opened store and its index
func New(cfg *config.Config, store *logstore.Store, ix *index.Index, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Correlation(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	engine := search.New(ix, search.WithLogger(logger), search.WithMetrics(metrics))
	handlers := apihttp.NewHandlers(store, ix, engine, metrics, logger)

	router.GET("/healthz", handlers.Health)

	v1 := router.Group("/v1")
	v1.GET("/logs/:correlation_id", handlers.Correlation)
	v1.GET("/logs", handlers.StatusRange)
	v1.GET("/errors/:class", handlers.ErrorClass)
	v1.GET("/recent", handlers.Recent)
	v1.GET("/query", handlers.Query)
	v1.GET("/stats", handlers.Stats)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return &Server{
		router:  router,
		store:   store,
		index:   ix,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting query server", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down query server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
