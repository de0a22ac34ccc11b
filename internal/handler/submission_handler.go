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

type submissionService interface {
	Create(ctx context.Context, moduleAssignmentID string, req dto.CreateSubmissionsRequest, actor *models.JWTClaims) (*dto.CreateSubmissionsResponse, error)
	Get(ctx context.Context, submissionID string) (*models.Submission, error)
	Details(ctx context.Context, moduleAssignmentID string) (*dto.SubmissionDetailsResponse, error)
	BulkUpdateDeadlines(ctx context.Context, req dto.BulkDeadlineUpdateRequest, actor *models.JWTClaims) (*dto.BulkDeadlineUpdateResponse, error)
}

type workflowService interface {
	Submit(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error)
	Approve(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error)
	Reject(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error)
	Reopen(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.TransitionResponse, error)
}

// SubmissionHandler exposes REST endpoints for submission lifecycles.
type SubmissionHandler struct {
	submissions submissionService
	workflow    workflowService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionService, workflow workflowService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, workflow: workflow}
}

// Create godoc
// @Summary Create CAT/EXAM submissions for a module assignment
// @Tags Submissions
// @Accept json
// @Produce json
// @Param moduleId path string true "Module assignment ID"
// @Param payload body dto.CreateSubmissionsRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /modules/{moduleId}/submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSubmissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	res, err := h.submissions.Create(c.Request.Context(), c.Param("moduleId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, res, nil)
}

// Details godoc
// @Summary Get per-track submission details with a derived overall status
// @Tags Submissions
// @Produce json
// @Param moduleId path string true "Module assignment ID"
// @Success 200 {object} response.Envelope
// @Router /modules/{moduleId}/submissions [get]
func (h *SubmissionHandler) Details(c *gin.Context) {
	res, err := h.submissions.Details(c.Request.Context(), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Get a single submission with its workflow steps
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.TransitionRequest false "Optional comments"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/submit [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	h.transition(c, h.workflow.Submit)
}

// Approve godoc
// @Summary Approve the pending workflow step
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.TransitionRequest false "Optional comments"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/approve [post]
func (h *SubmissionHandler) Approve(c *gin.Context) {
	h.transition(c, h.workflow.Approve)
}

// Reject godoc
// @Summary Reject the pending workflow step
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.TransitionRequest true "Rejection comments"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reject [post]
func (h *SubmissionHandler) Reject(c *gin.Context) {
	h.transition(c, h.workflow.Reject)
}

// Reopen godoc
// @Summary Reopen a rejected submission for corrections
// @Tags Workflow
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reopen [post]
func (h *SubmissionHandler) Reopen(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.workflow.Reopen(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// UpdateDeadlines godoc
// @Summary Update deadlines for multiple submissions
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.BulkDeadlineUpdateRequest true "Deadline payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/deadlines [patch]
func (h *SubmissionHandler) UpdateDeadlines(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkDeadlineUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid deadline payload"))
		return
	}
	res, err := h.submissions.BulkUpdateDeadlines(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

type transitionFunc func(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error)

func (h *SubmissionHandler) transition(c *gin.Context, fn transitionFunc) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
			return
		}
	}
	res, err := fn(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
