package controller

import (
	"codequest/internal/execution/ratelimit"
	"codequest/internal/execution/service"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ExecutionController handles code execution HTTP endpoints.
type ExecutionController struct {
	executionService *service.ExecutionService
}

// NewExecutionController creates a new ExecutionController.
func NewExecutionController(executionService *service.ExecutionService) *ExecutionController {
	return &ExecutionController{executionService: executionService}
}

// ExecuteRequest is the run-code request body.
type ExecuteRequest struct {
	LessonID string `json:"lesson_id" binding:"required"`
	Code     string `json:"code"`
}

// Run executes user code against a lesson's evaluation script.
func (h *ExecutionController) Run(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	userID := c.GetString("user_id")

	result, err := h.executionService.Execute(c.Request.Context(), req.LessonID, req.Code, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RateLimitMiddleware rejects requests over the per-client limit.
// It keys on the client IP and runs before any lesson lookup.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Check(c.ClientIP()); err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts execution endpoints on the router group.
func (h *ExecutionController) RegisterRoutes(group *gin.RouterGroup, limiter *ratelimit.Limiter) {
	group.POST("/execute/run", RateLimitMiddleware(limiter), h.Run)
}
