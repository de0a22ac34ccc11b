package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

const notificationColumns = `id, recipient_id, type, title, message, submission_id, read, created_at`

// NotificationRepository persists workflow notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications
	(id, recipient_id, type, title, message, submission_id, read, created_at)
	VALUES (:id, :recipient_id, :type, :title, :message, :submission_id, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns notifications matching the filter, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM notifications`, notificationColumns))

	conditions := make([]string, 0, 3)
	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		conditions = append(conditions, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = false")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead flips a notification to read for its recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	const query = `UPDATE notifications SET read = true WHERE id = $1 AND recipient_id = $2`
	if _, err := r.db.ExecContext(ctx, query, id, recipientID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// ExistsRecent reports whether a notification of the given type for a
// submission was created within the window. Deduplicates reminders
// across sweep runs.
func (r *NotificationRepository) ExistsRecent(ctx context.Context, submissionID string, notificationType models.NotificationType, window time.Duration) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM notifications
		WHERE submission_id = $1 AND type = $2 AND created_at > $3
	)`
	var exists bool
	cutoff := time.Now().UTC().Add(-window)
	if err := r.db.GetContext(ctx, &exists, query, submissionID, notificationType, cutoff); err != nil {
		return false, fmt.Errorf("check recent notification: %w", err)
	}
	return exists, nil
}
