package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
	"github.com/noah-isme/assessment-workflow-api/pkg/response"
)

type markService interface {
	Record(ctx context.Context, submissionID string, req dto.RecordMarksRequest, actor *models.JWTClaims) (*dto.RecordMarksResponse, error)
	List(ctx context.Context, submissionID string) ([]models.StudentMark, error)
}

type statisticsService interface {
	ForSubmission(ctx context.Context, submissionID string) (*models.SubmissionStatistics, error)
}

// MarkHandler exposes REST endpoints for student marks and statistics.
type MarkHandler struct {
	marks      markService
	statistics statisticsService
}

// NewMarkHandler constructs the handler.
func NewMarkHandler(marks markService, statistics statisticsService) *MarkHandler {
	return &MarkHandler{marks: marks, statistics: statistics}
}

// Record godoc
// @Summary Record or update student marks on a draft submission
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.RecordMarksRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/marks [put]
func (h *MarkHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RecordMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid marks payload"))
		return
	}
	res, err := h.marks.Record(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List recorded marks for a submission
// @Tags Marks
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	marks, err := h.marks.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}

// Statistics godoc
// @Summary Aggregate statistics for a submission
// @Tags Marks
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/statistics [get]
func (h *MarkHandler) Statistics(c *gin.Context) {
	stats, err := h.statistics.ForSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
