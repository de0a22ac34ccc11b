package dto

import (
	"time"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

// MarkSheetRequest asks for an asynchronous mark sheet export.
type MarkSheetRequest struct {
	Format models.MarkSheetFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// MarkSheetJobResponse acknowledges a queued export job.
type MarkSheetJobResponse struct {
	JobID     string                      `json:"job_id"`
	Status    models.MarkSheetJobStatus   `json:"status"`
	CreatedAt time.Time                   `json:"created_at"`
}

// MarkSheetStatusResponse reports job progress and, once finished, a
// signed download URL.
type MarkSheetStatusResponse struct {
	JobID        string                    `json:"job_id"`
	SubmissionID string                    `json:"submission_id"`
	Format       models.MarkSheetFormat    `json:"format"`
	Status       models.MarkSheetJobStatus `json:"status"`
	Progress     int                       `json:"progress"`
	ResultURL    *string                   `json:"result_url,omitempty"`
	SizeBytes    *int64                    `json:"size_bytes,omitempty"`
	ErrorMessage *string                   `json:"error_message,omitempty"`
	FinishedAt   *time.Time                `json:"finished_at,omitempty"`
}
