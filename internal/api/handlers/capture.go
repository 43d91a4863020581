package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidflex-worker-go/internal/models"
	"vidflex-worker-go/internal/services/capture"
)

type CaptureHandler struct {
	captureSvc *capture.Service
}

func NewCaptureHandler(captureSvc *capture.Service) *CaptureHandler {
	return &CaptureHandler{captureSvc: captureSvc}
}

// StartCapture launches a supervisor for the requested stream.
func (h *CaptureHandler) StartCapture(c *gin.Context) {
	var req models.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.captureSvc.Start(req.StreamID); err != nil {
		if errors.Is(err, capture.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "Server already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Server started successfully"})
}

// StopCapture stops the supervisor for the requested stream.
func (h *CaptureHandler) StopCapture(c *gin.Context) {
	var req models.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.captureSvc.Stop(req.StreamID); err != nil {
		if errors.Is(err, capture.ErrNotRunning) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Server stopped successfully"})
}

// CaptureStatus reports running state for one stream.
func (h *CaptureHandler) CaptureStatus(c *gin.Context) {
	streamID := c.Query("stream_id")
	if streamID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id is required"})
		return
	}

	c.JSON(http.StatusOK, models.StreamStatusResponse{
		StreamID: streamID,
		Running:  h.captureSvc.Status(streamID),
	})
}

// ListCaptures snapshots all registered supervisors.
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"supervisors": h.captureSvc.List()})
}
