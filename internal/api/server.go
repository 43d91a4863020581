package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidflex-worker-go/internal/api/handlers"
	"vidflex-worker-go/internal/api/middleware"
	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/services/capture"
	"vidflex-worker-go/internal/services/detect"
)

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	captureSvc *capture.Service
	detectSvc  *detect.Service
	metrics    *metrics.Metrics

	healthHandler    *handlers.HealthHandler
	captureHandler   *handlers.CaptureHandler
	detectionHandler *handlers.DetectionHandler
	systemHandler    *handlers.SystemHandler
}

func NewServer(cfg *config.Config, captureSvc *capture.Service, detectSvc *detect.Service, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:           cfg,
		router:           gin.New(),
		captureSvc:       captureSvc,
		detectSvc:        detectSvc,
		metrics:          m,
		healthHandler:    handlers.NewHealthHandler(cfg.WorkerID, cfg.Version),
		captureHandler:   handlers.NewCaptureHandler(captureSvc),
		detectionHandler: handlers.NewDetectionHandler(detectSvc),
		systemHandler:    handlers.NewSystemHandler(captureSvc, detectSvc),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS())
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
