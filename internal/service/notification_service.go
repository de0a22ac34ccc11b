package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	ExistsRecent(ctx context.Context, submissionID string, notificationType models.NotificationType, window time.Duration) (bool, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// NotificationConfig carries the fan-out targets.
type NotificationConfig struct {
	RedisChannel string
	NATSSubject  string
}

// NotificationService persists notifications and fans them out over
// Redis pub/sub and NATS. Fan-out is best effort: a broker outage
// never fails the workflow operation that triggered the notification.
type NotificationService struct {
	store       notificationStore
	assignments assignmentProvider
	publisher   eventPublisher
	nats        *nats.Conn
	cfg         NotificationConfig
	logger      *zap.Logger
}

// NewNotificationService constructs the service. Both the publisher
// and the NATS connection may be nil.
func NewNotificationService(store notificationStore, assignments assignmentProvider, publisher eventPublisher, natsConn *nats.Conn, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RedisChannel == "" {
		cfg.RedisChannel = "notifications"
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = "assessment.notifications"
	}
	return &NotificationService{
		store:       store,
		assignments: assignments,
		publisher:   publisher,
		nats:        natsConn,
		cfg:         cfg,
		logger:      logger,
	}
}

// Dispatch persists a notification and broadcasts it.
func (s *NotificationService) Dispatch(ctx context.Context, notification *models.Notification) error {
	if err := s.store.Create(ctx, notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}
	s.broadcast(ctx, notification)
	return nil
}

// Create dispatches a manually composed notification.
func (s *NotificationService) Create(ctx context.Context, req dto.CreateNotificationRequest) (*models.Notification, error) {
	notification := &models.Notification{
		RecipientID:  req.RecipientID,
		Type:         req.Type,
		Title:        req.Title,
		Message:      req.Message,
		SubmissionID: req.SubmissionID,
	}
	if err := s.Dispatch(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// List returns notifications for the filter.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	notifications, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags a notification as read for its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.store.MarkRead(ctx, id, recipientID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// StatusChanged notifies the module instructor about a workflow
// transition.
func (s *NotificationService) StatusChanged(ctx context.Context, submission *models.Submission, newStatus models.SubmissionStatus, actorName string) {
	recipient := s.instructorFor(ctx, submission)
	if recipient == "" {
		return
	}
	message := fmt.Sprintf("%s submission moved from %s to %s", submission.Type, submission.Status, newStatus)
	if actorName != "" {
		message = fmt.Sprintf("%s by %s", message, actorName)
	}
	notification := &models.Notification{
		RecipientID:  recipient,
		Type:         models.NotificationStatusChange,
		Title:        fmt.Sprintf("Submission %s", newStatus),
		Message:      message,
		SubmissionID: &submission.ID,
	}
	if err := s.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("status change notification failed",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

// DeadlineReminder warns the instructor about an approaching deadline.
// At most one reminder per submission per day.
func (s *NotificationService) DeadlineReminder(ctx context.Context, submission *models.Submission, daysLeft int) {
	exists, err := s.store.ExistsRecent(ctx, submission.ID, models.NotificationDeadlineReminder, 24*time.Hour)
	if err != nil {
		s.logger.Warn("reminder dedup check failed", zap.String("submission_id", submission.ID), zap.Error(err))
		return
	}
	if exists {
		return
	}
	recipient := s.instructorFor(ctx, submission)
	if recipient == "" {
		return
	}
	notification := &models.Notification{
		RecipientID:  recipient,
		Type:         models.NotificationDeadlineReminder,
		Title:        "Submission deadline approaching",
		Message:      fmt.Sprintf("%s submission is due in %d day(s)", submission.Type, daysLeft),
		SubmissionID: &submission.ID,
	}
	if err := s.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("deadline reminder failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

// OverdueAlert tells the instructor a deadline has lapsed.
func (s *NotificationService) OverdueAlert(ctx context.Context, submission *models.Submission) {
	exists, err := s.store.ExistsRecent(ctx, submission.ID, models.NotificationOverdueAlert, 24*time.Hour)
	if err != nil {
		s.logger.Warn("overdue dedup check failed", zap.String("submission_id", submission.ID), zap.Error(err))
		return
	}
	if exists {
		return
	}
	recipient := s.instructorFor(ctx, submission)
	if recipient == "" {
		return
	}
	notification := &models.Notification{
		RecipientID:  recipient,
		Type:         models.NotificationOverdueAlert,
		Title:        "Submission overdue",
		Message:      fmt.Sprintf("%s submission passed its deadline of %s", submission.Type, submission.Deadline.Format(time.RFC3339)),
		SubmissionID: &submission.ID,
	}
	if err := s.Dispatch(ctx, notification); err != nil {
		s.logger.Warn("overdue alert failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

func (s *NotificationService) instructorFor(ctx context.Context, submission *models.Submission) string {
	if s.assignments == nil {
		return ""
	}
	assignment, err := s.assignments.FindByID(ctx, submission.ModuleAssignmentID)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipient",
			zap.String("module_assignment_id", submission.ModuleAssignmentID), zap.Error(err))
		return ""
	}
	return assignment.InstructorID
}

func (s *NotificationService) broadcast(ctx context.Context, notification *models.Notification) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.cfg.RedisChannel, notification); err != nil {
			s.logger.Warn("redis notification publish failed", zap.Error(err))
		}
	}
	if s.nats != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			s.logger.Warn("notification marshal failed", zap.Error(err))
			return
		}
		if err := s.nats.Publish(s.cfg.NATSSubject, payload); err != nil {
			s.logger.Warn("nats notification publish failed", zap.Error(err))
		}
	}
}
