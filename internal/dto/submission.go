package dto

import (
	"time"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

// CreateSubmissionItem requests one assessment track for a module.
type CreateSubmissionItem struct {
	Type     models.SubmissionType `json:"type" validate:"required"`
	Deadline time.Time             `json:"deadline" validate:"required"`
}

// CreateSubmissionsRequest creates submissions for a module assignment.
// Creation is atomic: if any requested track conflicts with an active
// submission, nothing is created.
type CreateSubmissionsRequest struct {
	Items []CreateSubmissionItem `json:"items" validate:"required,min=1,max=2,dive"`
}

// SubmissionSummary is the compact submission shape returned by
// creation and listing endpoints.
type SubmissionSummary struct {
	ID                   string                  `json:"id"`
	Type                 models.SubmissionType   `json:"type"`
	Status               models.SubmissionStatus `json:"status"`
	Deadline             time.Time               `json:"deadline"`
	Overdue              bool                    `json:"overdue"`
	CompletionPercentage float64                 `json:"completion_percentage"`
	SubmittedAt          *time.Time              `json:"submitted_at,omitempty"`
	CompletedAt          *time.Time              `json:"completed_at,omitempty"`
}

// CreateSubmissionsResponse maps created tracks to their summaries.
type CreateSubmissionsResponse struct {
	CAT  *SubmissionSummary `json:"cat,omitempty"`
	Exam *SubmissionSummary `json:"exam,omitempty"`
}

// OverallSubmission is the derived status across both tracks.
type OverallSubmission struct {
	Status  models.SubmissionStatus `json:"status"`
	Overdue bool                    `json:"overdue"`
}

// SubmissionDetailsResponse aggregates a module's submission state.
type SubmissionDetailsResponse struct {
	CATSubmission  *models.Submission `json:"cat_submission,omitempty"`
	ExamSubmission *models.Submission `json:"exam_submission,omitempty"`
	Overall        OverallSubmission  `json:"overall_submission"`
}

// TransitionRequest carries reviewer comments for approve/reject.
type TransitionRequest struct {
	Comments string `json:"comments"`
}

// TransitionResponse returns the post-transition state and history.
type TransitionResponse struct {
	SubmissionID string                  `json:"submission_id"`
	Status       models.SubmissionStatus `json:"status"`
	Steps        []models.WorkflowStep   `json:"steps"`
}

// BulkDeadlineUpdateRequest shifts deadlines for a set of active
// submissions. The only legal deadline mutation after creation.
type BulkDeadlineUpdateRequest struct {
	SubmissionIDs []string  `json:"submission_ids" validate:"required,min=1"`
	Deadline      time.Time `json:"deadline" validate:"required"`
}

// BulkDeadlineUpdateResponse reports how many rows changed.
type BulkDeadlineUpdateResponse struct {
	Updated int `json:"updated"`
}
