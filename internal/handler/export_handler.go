package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
	"github.com/noah-isme/assessment-workflow-api/pkg/response"
)

type markSheetService interface {
	CreateJob(ctx context.Context, submissionID string, req dto.MarkSheetRequest, actor *models.JWTClaims) (*dto.MarkSheetJobResponse, error)
	Status(ctx context.Context, jobID string) (*dto.MarkSheetStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*os.File, string, error)
}

// ExportHandler exposes REST endpoints for mark sheet exports.
type ExportHandler struct {
	service markSheetService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service markSheetService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Create godoc
// @Summary Queue a mark sheet export job
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.MarkSheetRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Router /submissions/{id}/export [post]
func (h *ExportHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.MarkSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	res, err := h.service.CreateJob(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, res, nil)
}

// Status godoc
// @Summary Get export job status
// @Tags Exports
// @Produce json
// @Param jobId path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{jobId} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	res, err := h.service.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a finished mark sheet by signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "download token required"))
		return
	}
	file, relPath, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat artifact"))
		return
	}

	filename := filepath.Base(relPath)
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
