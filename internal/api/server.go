package api

import (
	"context"
	"net/http"
	"time"

	"example.com/backstage/dairy/config"
	"example.com/backstage/dairy/internal/api/handlers"
	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/services"
	"example.com/backstage/dairy/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP gateway
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	client     backend.Client
	auth       backend.Authenticator
	deps       services.Deps
}

// NewServer creates a new HTTP server. auth may be nil when the backend
// driver cannot sign sellers in.
func NewServer(cfg config.ServerConfig, client backend.Client, auth backend.Authenticator, deps services.Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	// Trip handles must outlive a single request
	if deps.Trips == nil {
		deps.Trips = services.NewTripTracker()
	}

	server := &Server{
		config: cfg,
		client: client,
		auth:   auth,
		deps:   deps,
	}
	server.router = server.setupRouter()

	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	return server
}

// Router exposes the handler, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), Logger(), Metrics(s.deps.Metrics))
	if app := s.deps.Tracer.Application(); app != nil {
		router.Use(NewRelic(app))
	}

	s.deps.Metrics.SetHealth("backend", s.client.Configured())
	handlers.NewMetricsHandler(s.deps.Metrics, s.deps.Tracer).RegisterRoutes(router)

	scope := handlers.Scope{Client: s.client, Deps: s.deps}
	v1 := router.Group("/api/v1")
	handlers.NewSessionHandler(s.client, s.auth, s.deps.Tracer).RegisterRoutes(v1)
	handlers.NewDeliveryHandler(scope, s.deps.Tracer).RegisterRoutes(v1)
	handlers.NewSellerHandler(scope, s.deps.Tracer).RegisterRoutes(v1)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
