package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/tracechain/internal/api/http"
	"github.com/GriffinCanCode/tracechain/internal/api/middleware"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and its router
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
	addr   string
}

// NewRouter builds the gin engine. Recovery is outermost so that the
// tracing middleware sees handler panics and still ends the request span.
// /metrics is mounted ahead of the request middleware and is not traced.
func NewRouter(
	cfg *config.Config,
	handlers *apihttp.Handlers,
	tracer *tracing.Tracer,
	metrics *monitoring.Metrics,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	router.Use(middleware.RequestID())
	if tracer.Enabled() {
		router.Use(tracing.HTTPMiddleware(tracer))
	}
	router.Use(monitoring.Middleware(metrics, tracer.SampledTraceID))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit, logger))
	}

	handlers.Register(router)
	return router
}

// New creates a server listening on the configured address
func New(cfg *config.Config, router *gin.Engine, logger *zap.Logger) *Server {
	addr := cfg.Server.Addr()
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
		addr:   addr,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background. Binding errors are
// returned so startup fails fast.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.http.Shutdown(ctx)
}

// Module wires the HTTP server into the application lifecycle.
var Module = fx.Module("server",
	fx.Provide(
		apihttp.NewHandlers,
		NewRouter,
		New,
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
}
