package controller

import (
	"time"

	"codequest/internal/lesson/model"
	"codequest/internal/lesson/service"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LessonController handles lesson HTTP endpoints.
type LessonController struct {
	lessonService *service.LessonService
}

// NewLessonController creates a new LessonController.
func NewLessonController(lessonService *service.LessonService) *LessonController {
	return &LessonController{lessonService: lessonService}
}

// SampleCaseBody mirrors model.SampleCase in request bodies.
type SampleCaseBody struct {
	Name  string `json:"name" binding:"required"`
	Label string `json:"label"`
}

// CreateLessonRequest is the admin create-lesson body.
type CreateLessonRequest struct {
	Order             int              `json:"order" binding:"required"`
	Slug              string           `json:"slug" binding:"required"`
	Name              string           `json:"name" binding:"required"`
	BodyMarkdown      string           `json:"body_markdown"`
	ExpectedOutput    string           `json:"expected_output"`
	CodeEditorDefault string           `json:"code_editor_default"`
	EvalScript        string           `json:"eval_script"`
	SampleCases       []SampleCaseBody `json:"sample_cases"`
}

// UpdateLessonRequest is the admin update-lesson body. Absent fields
// keep their current value.
type UpdateLessonRequest struct {
	Order             *int             `json:"order"`
	Slug              *string          `json:"slug"`
	Name              *string          `json:"name"`
	BodyMarkdown      *string          `json:"body_markdown"`
	ExpectedOutput    *string          `json:"expected_output"`
	CodeEditorDefault *string          `json:"code_editor_default"`
	EvalScript        *string          `json:"eval_script"`
	SampleCases       []SampleCaseBody `json:"sample_cases"`
}

// LessonResponse is the public lesson shape. The evaluation script is
// admin-only and never leaves through this response.
type LessonResponse struct {
	ID                string             `json:"id"`
	Order             int                `json:"order"`
	Slug              string             `json:"slug"`
	Name              string             `json:"name"`
	BodyMarkdown      string             `json:"body_markdown"`
	ExpectedOutput    string             `json:"expected_output"`
	CodeEditorDefault string             `json:"code_editor_default"`
	SampleCases       []model.SampleCase `json:"sample_cases"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         *time.Time         `json:"updated_at"`
}

// AdminLessonResponse includes the evaluation script.
type AdminLessonResponse struct {
	LessonResponse
	EvalScript string `json:"eval_script"`
}

// List returns all lessons in display order.
func (h *LessonController) List(c *gin.Context) {
	lessons, err := h.lessonService.GetAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]LessonResponse, 0, len(lessons))
	for _, lesson := range lessons {
		items = append(items, toLessonResponse(lesson))
	}
	response.Success(c, items)
}

// GetBySlug returns one lesson by its slug.
func (h *LessonController) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")
	lesson, err := h.lessonService.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toLessonResponse(lesson))
}

// AdminGet returns one lesson by id, including the evaluation script.
func (h *LessonController) AdminGet(c *gin.Context) {
	lesson, err := h.lessonService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAdminLessonResponse(lesson))
}

// Create handles admin lesson creation.
func (h *LessonController) Create(c *gin.Context) {
	var req CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	lesson, err := h.lessonService.Create(c.Request.Context(), service.CreateInput{
		Order:             req.Order,
		Slug:              req.Slug,
		Name:              req.Name,
		BodyMarkdown:      req.BodyMarkdown,
		ExpectedOutput:    req.ExpectedOutput,
		CodeEditorDefault: req.CodeEditorDefault,
		EvalScript:        req.EvalScript,
		SampleCases:       toSampleCases(req.SampleCases),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAdminLessonResponse(lesson))
}

// Update handles admin lesson updates.
func (h *LessonController) Update(c *gin.Context) {
	var req UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	lesson, err := h.lessonService.Update(c.Request.Context(), c.Param("id"), service.UpdateInput{
		Order:             req.Order,
		Slug:              req.Slug,
		Name:              req.Name,
		BodyMarkdown:      req.BodyMarkdown,
		ExpectedOutput:    req.ExpectedOutput,
		CodeEditorDefault: req.CodeEditorDefault,
		EvalScript:        req.EvalScript,
		SampleCases:       toSampleCases(req.SampleCases),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toAdminLessonResponse(lesson))
}

// Delete handles admin lesson deletion.
func (h *LessonController) Delete(c *gin.Context) {
	if err := h.lessonService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RegisterRoutes mounts public lesson endpoints.
func (h *LessonController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/lessons", h.List)
	group.GET("/lessons/:slug", h.GetBySlug)
}

// RegisterAdminRoutes mounts admin lesson endpoints.
func (h *LessonController) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.POST("/lessons", h.Create)
	group.GET("/lessons/:id", h.AdminGet)
	group.PUT("/lessons/:id", h.Update)
	group.DELETE("/lessons/:id", h.Delete)
}

func toSampleCases(cases []SampleCaseBody) []model.SampleCase {
	if cases == nil {
		return nil
	}
	result := make([]model.SampleCase, 0, len(cases))
	for _, sc := range cases {
		result = append(result, model.SampleCase{Name: sc.Name, Label: sc.Label})
	}
	return result
}

func toLessonResponse(lesson *model.Lesson) LessonResponse {
	sampleCases := lesson.SampleCases
	if sampleCases == nil {
		sampleCases = []model.SampleCase{}
	}
	return LessonResponse{
		ID:                lesson.ID,
		Order:             lesson.Order,
		Slug:              lesson.Slug,
		Name:              lesson.Name,
		BodyMarkdown:      lesson.BodyMarkdown,
		ExpectedOutput:    lesson.ExpectedOutput,
		CodeEditorDefault: lesson.CodeEditorDefault,
		SampleCases:       sampleCases,
		CreatedAt:         lesson.CreatedAt,
		UpdatedAt:         lesson.UpdatedAt,
	}
}

func toAdminLessonResponse(lesson *model.Lesson) AdminLessonResponse {
	return AdminLessonResponse{
		LessonResponse: toLessonResponse(lesson),
		EvalScript:     lesson.EvalScript,
	}
}
