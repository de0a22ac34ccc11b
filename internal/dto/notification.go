package dto

import "github.com/noah-isme/assessment-workflow-api/internal/models"

// CreateNotificationRequest dispatches a manual notification.
type CreateNotificationRequest struct {
	RecipientID  string                  `json:"recipient_id" validate:"required"`
	Type         models.NotificationType `json:"type" validate:"required"`
	Title        string                  `json:"title" validate:"required"`
	Message      string                  `json:"message" validate:"required"`
	SubmissionID *string                 `json:"submission_id,omitempty"`
}
