package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/middleware"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type submissionServiceMock struct {
	createResp   *dto.CreateSubmissionsResponse
	createErr    error
	createModule string
	detailsResp  *dto.SubmissionDetailsResponse
	getResp      *models.Submission
	bulkResp     *dto.BulkDeadlineUpdateResponse
	bulkErr      error
}

func (m *submissionServiceMock) Create(ctx context.Context, moduleAssignmentID string, req dto.CreateSubmissionsRequest, actor *models.JWTClaims) (*dto.CreateSubmissionsResponse, error) {
	m.createModule = moduleAssignmentID
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *submissionServiceMock) Get(ctx context.Context, submissionID string) (*models.Submission, error) {
	if m.getResp == nil {
		return nil, appErrors.ErrNotFound
	}
	return m.getResp, nil
}

func (m *submissionServiceMock) Details(ctx context.Context, moduleAssignmentID string) (*dto.SubmissionDetailsResponse, error) {
	if m.detailsResp == nil {
		return nil, appErrors.ErrNotFound
	}
	return m.detailsResp, nil
}

func (m *submissionServiceMock) BulkUpdateDeadlines(ctx context.Context, req dto.BulkDeadlineUpdateRequest, actor *models.JWTClaims) (*dto.BulkDeadlineUpdateResponse, error) {
	if m.bulkErr != nil {
		return nil, m.bulkErr
	}
	return m.bulkResp, nil
}

type workflowServiceMock struct {
	resp    *dto.TransitionResponse
	err     error
	lastOp  string
	gotID   string
	gotReq  dto.TransitionRequest
	reopens int
}

func (m *workflowServiceMock) Submit(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	m.lastOp, m.gotID, m.gotReq = "submit", submissionID, req
	return m.resp, m.err
}

func (m *workflowServiceMock) Approve(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	m.lastOp, m.gotID, m.gotReq = "approve", submissionID, req
	return m.resp, m.err
}

func (m *workflowServiceMock) Reject(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	m.lastOp, m.gotID, m.gotReq = "reject", submissionID, req
	return m.resp, m.err
}

func (m *workflowServiceMock) Reopen(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	m.lastOp, m.gotID = "reopen", submissionID
	m.reopens++
	return m.resp, m.err
}

func testClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "officer-1", Role: models.RoleLecturer, FullName: "Jane Officer"}
}

func TestSubmissionHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &submissionServiceMock{createResp: &dto.CreateSubmissionsResponse{}}
	handler := NewSubmissionHandler(svc, &workflowServiceMock{})

	payload := dto.CreateSubmissionsRequest{Items: []dto.CreateSubmissionItem{{
		Type:     models.SubmissionTypeCAT,
		Deadline: time.Now().Add(72 * time.Hour),
	}}}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/modules/mod-1/submissions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "moduleId", Value: "mod-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "mod-1", svc.createModule)
}

func TestSubmissionHandlerCreateUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &workflowServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/modules/mod-1/submissions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmissionHandlerSubmitRoutesToWorkflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	workflow := &workflowServiceMock{resp: &dto.TransitionResponse{SubmissionID: "sub-1", Status: models.SubmissionStatusSubmitted}}
	handler := NewSubmissionHandler(&submissionServiceMock{}, workflow)

	body, _ := json.Marshal(dto.TransitionRequest{Comments: "ready"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "submit", workflow.lastOp)
	require.Equal(t, "sub-1", workflow.gotID)
	require.Equal(t, "ready", workflow.gotReq.Comments)
}

func TestSubmissionHandlerTransitionConflictStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	workflow := &workflowServiceMock{err: appErrors.ErrVersionConflict}
	handler := NewSubmissionHandler(&submissionServiceMock{}, workflow)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/approve", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, testClaims())

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissionHandlerUpdateDeadlinesInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &workflowServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/submissions/deadlines", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, testClaims())

	handler.UpdateDeadlines(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
