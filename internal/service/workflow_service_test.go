package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type fakeWorkflowStore struct {
	submission *models.Submission
	applyErr   error
	created    []*models.Submission
	applied    []repository.TransitionParams
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id string) (*models.Submission, error) {
	if f.submission != nil && f.submission.ID == id {
		copied := *f.submission
		copied.Steps = append([]models.WorkflowStep(nil), f.submission.Steps...)
		return &copied, nil
	}
	for _, submission := range f.created {
		if submission.ID == id {
			copied := *submission
			copied.Steps = append([]models.WorkflowStep(nil), submission.Steps...)
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeWorkflowStore) Create(_ context.Context, submission *models.Submission) error {
	submission.ID = fmt.Sprintf("sub-%d", len(f.created)+2)
	if len(submission.Steps) == 0 {
		for i, entry := range models.StepTemplate(submission.Type) {
			submission.Steps = append(submission.Steps, models.WorkflowStep{
				ID:           fmt.Sprintf("%s-step-%d", submission.ID, i+1),
				SubmissionID: submission.ID,
				Name:         entry.Name,
				Level:        entry.Level,
				Required:     entry.Required,
				Status:       models.StepStatusPending,
				StepOrder:    i + 1,
			})
		}
	}
	if submission.CurrentStepOrder == 0 && len(submission.Steps) > 0 {
		submission.CurrentStepOrder = submission.Steps[0].StepOrder
	}
	f.created = append(f.created, submission)
	return nil
}

func (f *fakeWorkflowStore) ApplyTransition(_ context.Context, params repository.TransitionParams) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.submission.Version != params.ExpectedVersion {
		return sql.ErrNoRows
	}
	f.applied = append(f.applied, params)
	f.submission.Status = params.Status
	f.submission.SubmittedAt = params.SubmittedAt
	f.submission.CompletedAt = params.CompletedAt
	f.submission.CurrentStepOrder = params.CurrentStepOrder
	f.submission.Version++
	for i := range f.submission.Steps {
		if f.submission.Steps[i].ID == params.StepID {
			f.submission.Steps[i].Status = params.StepStatus
			f.submission.Steps[i].OfficerID = params.StepOfficerID
			f.submission.Steps[i].Comments = params.StepComments
			f.submission.Steps[i].CompletedAt = params.StepCompletedAt
		}
	}
	return nil
}

type fakeWorkflowMarks struct {
	marks map[string][]models.StudentMark
}

func (f *fakeWorkflowMarks) ListBySubmission(_ context.Context, submissionID string) ([]models.StudentMark, error) {
	return f.marks[submissionID], nil
}

func (f *fakeWorkflowMarks) Upsert(_ context.Context, marks []*models.StudentMark) error {
	if f.marks == nil {
		f.marks = make(map[string][]models.StudentMark)
	}
	for _, mark := range marks {
		f.marks[mark.SubmissionID] = append(f.marks[mark.SubmissionID], *mark)
	}
	return nil
}

type fakeAudit struct {
	logs []models.AuditLog
}

func (f *fakeAudit) Create(_ context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

func draftSubmission(valid bool) *models.Submission {
	now := time.Now().UTC().Add(-time.Hour)
	return &models.Submission{
		ID:                 "sub-1",
		ModuleAssignmentID: "assignment-1",
		Type:               models.SubmissionTypeCAT,
		Status:             models.SubmissionStatusDraft,
		Deadline:           time.Now().Add(48 * time.Hour),
		Validation:         models.ValidationInfo{IsValid: valid, IsComplete: valid},
		CurrentStepOrder:   1,
		CreatedAt:          now,
		Steps: []models.WorkflowStep{
			{ID: "step-1", SubmissionID: "sub-1", Name: "Lecturer Entry", Level: models.LevelLecturer, Status: models.StepStatusPending, StepOrder: 1, Required: true},
			{ID: "step-2", SubmissionID: "sub-1", Name: "HOD Review", Level: models.LevelHOD, Status: models.StepStatusPending, StepOrder: 2, Required: true},
		},
	}
}

func lecturerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleLecturer, FullName: "Dr. Lecturer"}
}

func hodClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-2", Role: models.RoleHOD, FullName: "Prof. Head"}
}

func TestSubmitMovesDraftToSubmitted(t *testing.T) {
	store := &fakeWorkflowStore{submission: draftSubmission(true)}
	audit := &fakeAudit{}
	svc := NewWorkflowService(store, nil, audit, nil, nil, nil)

	resp, err := svc.Submit(context.Background(), "sub-1", dto.TransitionRequest{}, lecturerClaims())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, resp.Status)
	require.Equal(t, 2, store.submission.CurrentStepOrder)
	require.Equal(t, models.StepStatusCompleted, store.submission.Steps[0].Status)
	require.NotNil(t, store.submission.SubmittedAt)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionSubmissionSubmit, audit.logs[0].Action)
}

func TestSubmitRequiresValidMarks(t *testing.T) {
	store := &fakeWorkflowStore{submission: draftSubmission(false)}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Submit(context.Background(), "sub-1", dto.TransitionRequest{}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrNotValid))
}

func TestSubmitRejectsWrongRole(t *testing.T) {
	store := &fakeWorkflowStore{submission: draftSubmission(true)}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Submit(context.Background(), "sub-1", dto.TransitionRequest{}, hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func submittedSubmission() *models.Submission {
	submission := draftSubmission(true)
	now := time.Now().UTC().Add(-30 * time.Minute)
	submission.Status = models.SubmissionStatusSubmitted
	submission.SubmittedAt = &now
	submission.CurrentStepOrder = 2
	submission.Steps[0].Status = models.StepStatusCompleted
	submission.Steps[0].CompletedAt = &now
	submission.Version = 1
	return submission
}

func TestApproveFinalStepFinalizes(t *testing.T) {
	store := &fakeWorkflowStore{submission: submittedSubmission()}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	resp, err := svc.Approve(context.Background(), "sub-1", dto.TransitionRequest{Comments: "checked"}, hodClaims())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusApproved, resp.Status)
	require.NotNil(t, store.submission.CompletedAt)
	require.Equal(t, models.StepStatusCompleted, store.submission.Steps[1].Status)
}

func TestApproveRejectsLecturer(t *testing.T) {
	store := &fakeWorkflowStore{submission: submittedSubmission()}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Approve(context.Background(), "sub-1", dto.TransitionRequest{}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestApproveTerminalSubmissionFails(t *testing.T) {
	submission := submittedSubmission()
	submission.Status = models.SubmissionStatusApproved
	store := &fakeWorkflowStore{submission: submission}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Approve(context.Background(), "sub-1", dto.TransitionRequest{}, hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrAlreadyFinalized))
}

func TestRejectRequiresComments(t *testing.T) {
	store := &fakeWorkflowStore{submission: submittedSubmission()}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Reject(context.Background(), "sub-1", dto.TransitionRequest{}, hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))

	resp, err := svc.Reject(context.Background(), "sub-1", dto.TransitionRequest{Comments: "missing quiz marks"}, hodClaims())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusRejected, resp.Status)
	require.Equal(t, models.StepStatusRejected, store.submission.Steps[1].Status)
}

func TestVersionConflictSurfacesAsConflict(t *testing.T) {
	submission := submittedSubmission()
	store := &fakeWorkflowStore{submission: submission}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	submission.Version = 7
	store.submission = submission
	store.applyErr = sql.ErrNoRows

	_, err := svc.Approve(context.Background(), "sub-1", dto.TransitionRequest{}, hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrVersionConflict))
}

func TestCommitFailureSurfacesAsIndeterminate(t *testing.T) {
	store := &fakeWorkflowStore{submission: submittedSubmission()}
	store.applyErr = fmt.Errorf("%w: commit transition: connection reset", repository.ErrCommitUnconfirmed)
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Approve(context.Background(), "sub-1", dto.TransitionRequest{Comments: "checked"}, hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrIndeterminate))
}

func TestReopenCreatesFreshDraft(t *testing.T) {
	submission := submittedSubmission()
	submission.Status = models.SubmissionStatusRejected
	comments := "missing quiz marks"
	officer := "user-2"
	submission.Steps[1].Status = models.StepStatusRejected
	submission.Steps[1].OfficerID = &officer
	submission.Steps[1].Comments = &comments
	store := &fakeWorkflowStore{submission: submission}
	marks := &fakeWorkflowMarks{marks: map[string][]models.StudentMark{
		"sub-1": {{ID: "mark-1", SubmissionID: "sub-1", StudentID: "s1", RegistrationNumber: "REG-001"}},
	}}
	svc := NewWorkflowService(store, marks, nil, nil, nil, nil)

	resp, err := svc.Reopen(context.Background(), "sub-1", hodClaims())
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusDraft, resp.Status)
	require.NotEqual(t, "sub-1", resp.SubmissionID)

	// The rejected submission stays untouched as history.
	require.Equal(t, models.SubmissionStatusRejected, store.submission.Status)
	require.Equal(t, models.StepStatusRejected, store.submission.Steps[1].Status)
	require.NotNil(t, store.submission.Steps[1].OfficerID)
	require.NotNil(t, store.submission.Steps[1].Comments)

	// The new draft starts with pending steps and carries the marks over.
	require.Len(t, store.created, 1)
	fresh := store.created[0]
	require.Equal(t, models.SubmissionStatusDraft, fresh.Status)
	require.Equal(t, submission.ModuleAssignmentID, fresh.ModuleAssignmentID)
	require.Equal(t, models.StepStatusPending, fresh.Steps[0].Status)
	carried := marks.marks[fresh.ID]
	require.Len(t, carried, 1)
	require.Equal(t, "s1", carried[0].StudentID)
	require.Equal(t, fresh.ID, carried[0].SubmissionID)
}

func TestReopenRefusesNonRejected(t *testing.T) {
	store := &fakeWorkflowStore{submission: submittedSubmission()}
	svc := NewWorkflowService(store, nil, nil, nil, nil, nil)

	_, err := svc.Reopen(context.Background(), "sub-1", hodClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrWrongState))
}
