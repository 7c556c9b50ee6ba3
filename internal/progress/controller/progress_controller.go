package controller

import (
	"codequest/internal/progress/service"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProgressController handles progress HTTP endpoints.
type ProgressController struct {
	progressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{progressService: progressService}
}

// Get returns the authenticated user's progress.
func (h *ProgressController) Get(c *gin.Context) {
	progress, err := h.progressService.GetProgress(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, progress)
}

// Reset wipes the authenticated user's progress.
func (h *ProgressController) Reset(c *gin.Context) {
	removed, err := h.progressService.Reset(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

// RegisterRoutes mounts progress endpoints on an authenticated group.
func (h *ProgressController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/progress", h.Get)
	group.DELETE("/progress", h.Reset)
}
