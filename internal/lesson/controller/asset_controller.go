package controller

import (
	"io"
	"strconv"

	"codequest/internal/lesson/service"
	"codequest/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AssetController handles lesson asset HTTP endpoints.
type AssetController struct {
	assetService *service.AssetService
}

// NewAssetController creates a new AssetController.
func NewAssetController(assetService *service.AssetService) *AssetController {
	return &AssetController{assetService: assetService}
}

// Upload handles admin multipart asset upload for a lesson.
func (h *AssetController) Upload(c *gin.Context) {
	lessonID := c.Param("id")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "Missing file field")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "Cannot read uploaded file")
		return
	}
	defer file.Close()

	asset, err := h.assetService.Upload(
		c.Request.Context(),
		lessonID,
		fileHeader.Filename,
		file,
		fileHeader.Size,
		fileHeader.Header.Get("Content-Type"),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, asset)
}

// List returns all assets stored for a lesson.
func (h *AssetController) List(c *gin.Context) {
	assets, err := h.assetService.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, assets)
}

// Download streams an asset through the local disk cache.
func (h *AssetController) Download(c *gin.Context) {
	objectKey := c.Param("key")
	if len(objectKey) > 0 && objectKey[0] == '/' {
		objectKey = objectKey[1:]
	}

	reader, info, err := h.assetService.Open(c.Request.Context(), objectKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Length", strconv.FormatInt(info.SizeBytes, 10))
	c.Header("Content-Type", contentType)
	c.Status(200)
	_, _ = io.Copy(c.Writer, reader)
}

// PresignDownload returns a direct download URL for an asset.
func (h *AssetController) PresignDownload(c *gin.Context) {
	objectKey := c.Param("key")
	if len(objectKey) > 0 && objectKey[0] == '/' {
		objectKey = objectKey[1:]
	}

	url, err := h.assetService.PresignDownload(c.Request.Context(), objectKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"url": url})
}

// Delete removes an asset.
func (h *AssetController) Delete(c *gin.Context) {
	objectKey := c.Param("key")
	if len(objectKey) > 0 && objectKey[0] == '/' {
		objectKey = objectKey[1:]
	}

	if err := h.assetService.Delete(c.Request.Context(), objectKey); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RegisterRoutes mounts the public asset download endpoint.
func (h *AssetController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/assets/*key", h.Download)
}

// RegisterAdminRoutes mounts admin asset endpoints.
func (h *AssetController) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.POST("/lessons/:id/assets", h.Upload)
	group.GET("/lessons/:id/assets", h.List)
	group.GET("/assets/presign/*key", h.PresignDownload)
	group.DELETE("/assets/*key", h.Delete)
}
