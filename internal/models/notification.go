package models

import "time"

// NotificationType enumerates dispatched alert categories.
type NotificationType string

const (
	NotificationDeadlineReminder NotificationType = "DEADLINE_REMINDER"
	NotificationOverdueAlert     NotificationType = "OVERDUE_ALERT"
	NotificationStatusChange     NotificationType = "STATUS_CHANGE"
)

// Notification is a persisted alert for an officer.
type Notification struct {
	ID           string           `db:"id" json:"id"`
	RecipientID  string           `db:"recipient_id" json:"recipient_id"`
	Type         NotificationType `db:"type" json:"type"`
	Title        string           `db:"title" json:"title"`
	Message      string           `db:"message" json:"message"`
	SubmissionID *string          `db:"submission_id" json:"submission_id,omitempty"`
	Read         bool             `db:"read" json:"read"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter constrains notification listings.
type NotificationFilter struct {
	RecipientID string
	Type        NotificationType
	UnreadOnly  bool
	Limit       int
	Offset      int
}
