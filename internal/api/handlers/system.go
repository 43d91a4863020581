package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vidflex-worker-go/internal/services/capture"
	"vidflex-worker-go/internal/services/detect"
)

type SystemHandler struct {
	captureSvc *capture.Service
	detectSvc  *detect.Service
}

func NewSystemHandler(captureSvc *capture.Service, detectSvc *detect.Service) *SystemHandler {
	return &SystemHandler{captureSvc: captureSvc, detectSvc: detectSvc}
}

// Reset clears all run flags, deletes all frames and deactivates all
// configurations. Used for crash recovery and clean-slate restarts.
func (h *SystemHandler) Reset(c *gin.Context) {
	h.detectSvc.StopAll()

	if err := h.captureSvc.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "System reset completed"})
}
