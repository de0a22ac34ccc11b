package dto

import "github.com/noah-isme/assessment-workflow-api/internal/models"

// MarkEntry records scores for a single student.
type MarkEntry struct {
	StudentID          string                             `json:"student_id" validate:"required"`
	RegistrationNumber string                             `json:"registration_number"`
	Scores             map[models.ComponentKind]float64   `json:"scores"`
	Remark             string                             `json:"remark"`
}

// RecordMarksRequest upserts marks for one or more students on a
// submission. Student IDs must be unique within the payload.
type RecordMarksRequest struct {
	Marks []MarkEntry `json:"marks" validate:"required,min=1,dive"`
}

// RecordMarksResponse reports the upsert result and the recomputed
// validation snapshot.
type RecordMarksResponse struct {
	UpdatedCount int                   `json:"updated_count"`
	Validation   models.ValidationInfo `json:"validation"`
}
