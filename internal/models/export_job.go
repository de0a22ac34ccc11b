package models

import "time"

// MarkSheetFormat enumerates supported artifact formats.
type MarkSheetFormat string

const (
	MarkSheetFormatCSV MarkSheetFormat = "csv"
	MarkSheetFormatPDF MarkSheetFormat = "pdf"
)

// MarkSheetJobStatus captures background job lifecycle states.
type MarkSheetJobStatus string

const (
	MarkSheetStatusQueued     MarkSheetJobStatus = "QUEUED"
	MarkSheetStatusProcessing MarkSheetJobStatus = "PROCESSING"
	MarkSheetStatusFinished   MarkSheetJobStatus = "FINISHED"
	MarkSheetStatusFailed     MarkSheetJobStatus = "FAILED"
)

// MarkSheetJob is a persisted mark sheet generation job.
type MarkSheetJob struct {
	ID           string             `db:"id" json:"id"`
	SubmissionID string             `db:"submission_id" json:"submission_id"`
	Format       MarkSheetFormat    `db:"format" json:"format"`
	Status       MarkSheetJobStatus `db:"status" json:"status"`
	Progress     int                `db:"progress" json:"progress"`
	ResultURL    *string            `db:"result_url" json:"result_url,omitempty"`
	SizeBytes    *int64             `db:"size_bytes" json:"size_bytes,omitempty"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time         `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string            `db:"error_message" json:"error_message,omitempty"`
}
