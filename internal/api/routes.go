package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler(func() {
			s.metrics.SetActiveSupervisors(s.captureSvc.ActiveCount())
			s.metrics.SetActiveConsumers(s.detectSvc.ActiveCount())
		})))
	}

	captureGroup := s.router.Group("/capture")
	{
		captureGroup.POST("/start", s.captureHandler.StartCapture)
		captureGroup.POST("/stop", s.captureHandler.StopCapture)
		captureGroup.GET("/status", s.captureHandler.CaptureStatus)
		captureGroup.GET("/list", s.captureHandler.ListCaptures)
	}

	detectionGroup := s.router.Group("/detection")
	{
		detectionGroup.POST("/start", s.detectionHandler.StartDetection)
		detectionGroup.POST("/stop", s.detectionHandler.StopDetection)
		detectionGroup.GET("/status", s.detectionHandler.DetectionStatus)
		detectionGroup.GET("/list", s.detectionHandler.ListDetections)
	}

	system := s.router.Group("/system")
	{
		system.POST("/reset", s.systemHandler.Reset)
	}
}
