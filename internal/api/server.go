package api

import (
	"context"
	"net/http"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/api/handlers"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/api/middleware"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/repositories"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/postal"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/tracking"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server

	shipmentService *shipments.Service
	syncEngine      *tracking.Engine
	postalBackfill  *postal.Backfill
	sessions        *repositories.SyncSessionRepository
	metrics         *metrics.Metrics
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	shipmentService *shipments.Service,
	syncEngine *tracking.Engine,
	postalBackfill *postal.Backfill,
	sessions *repositories.SyncSessionRepository,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		shipmentService: shipmentService,
		syncEngine:      syncEngine,
		postalBackfill:  postalBackfill,
		sessions:        sessions,
		metrics:         metricsCollector,
		tracer:          tracer,
	}

	server.router = server.setupRouter()

	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: server.router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	shipmentsHandler := handlers.NewShipmentsHandler(s.shipmentService, s.tracer)
	shipmentsHandler.RegisterRoutes(router)

	syncHandler := handlers.NewSyncHandler(s.syncEngine, s.postalBackfill, s.sessions, s.tracer)
	syncHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

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
