package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/services/detect"
)

type DetectionHandler struct {
	detectSvc *detect.Service
}

func NewDetectionHandler(detectSvc *detect.Service) *DetectionHandler {
	return &DetectionHandler{detectSvc: detectSvc}
}

// StartDetection launches a consumer loop for the requested stream.
func (h *DetectionHandler) StartDetection(c *gin.Context) {
	var req models.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.detectSvc.Start(req.StreamID); err != nil {
		switch {
		case errors.Is(err, detect.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "Detection already running"})
		case errors.Is(err, detect.ErrNoConfig):
			c.JSON(http.StatusNotFound, gin.H{"error": "No configuration found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Detection started successfully"})
}

// StopDetection stops the consumer loop for the requested stream.
func (h *DetectionHandler) StopDetection(c *gin.Context) {
	var req models.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.detectSvc.Stop(req.StreamID); err != nil {
		if errors.Is(err, detect.ErrNotRunning) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Detection not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Detection stopped successfully"})
}

// DetectionStatus reports running state for one stream.
func (h *DetectionHandler) DetectionStatus(c *gin.Context) {
	streamID := c.Query("stream_id")
	if streamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id is required"})
		return
	}

	c.JSON(http.StatusOK, models.StreamStatusResponse{
		StreamID: streamID,
		Running:  h.detectSvc.Status(streamID),
	})
}

// ListDetections snapshots all registered consumers.
func (h *DetectionHandler) ListDetections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"consumers": h.detectSvc.List()})
}
