package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

type deadlineSubmissionStore interface {
	ListNonTerminal(ctx context.Context) ([]models.Submission, error)
	SetOverdue(ctx context.Context, submissionID string, overdue bool) error
}

type deadlineNotifier interface {
	DeadlineReminder(ctx context.Context, submission *models.Submission, daysLeft int)
	OverdueAlert(ctx context.Context, submission *models.Submission)
}

type sweepRecorder interface {
	SetOverdueCount(count int)
	ObserveSweepDuration(d time.Duration)
}

// DeadlineService tracks submissions against their deadlines. The
// sweep runs on a timer, flips the overdue flag on lapsed submissions
// and dispatches reminders approaching the deadline. Overdue never
// blocks any workflow operation; it is an observation layered on top.
type DeadlineService struct {
	submissions    deadlineSubmissionStore
	notifier       deadlineNotifier
	metrics        sweepRecorder
	interval       time.Duration
	lockTimeout    time.Duration
	reminderWindow time.Duration
	logger         *zap.Logger
}

// NewDeadlineService constructs the service.
func NewDeadlineService(submissions deadlineSubmissionStore, notifier deadlineNotifier, metrics sweepRecorder, interval, lockTimeout, reminderWindow time.Duration, logger *zap.Logger) *DeadlineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	if reminderWindow <= 0 {
		reminderWindow = 48 * time.Hour
	}
	return &DeadlineService{
		submissions:    submissions,
		notifier:       notifier,
		metrics:        metrics,
		interval:       interval,
		lockTimeout:    lockTimeout,
		reminderWindow: reminderWindow,
		logger:         logger,
	}
}

// Status reports a submission's position relative to its deadline.
// Days are counted in whole days rounded up, so a deadline 25 hours
// away reads as 2 days.
func Status(deadline time.Time, overdue bool, now time.Time) models.DeadlineStatus {
	hours := deadline.Sub(now).Hours()
	days := int(math.Ceil(hours / 24))
	display := days
	if display < 0 {
		display = 0
	}
	return models.DeadlineStatus{
		DaysUntilDeadline: days,
		DisplayDays:       display,
		IsOverdue:         overdue || now.After(deadline),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *DeadlineService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("deadline sweep started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("deadline sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the non-terminal submissions.
func (s *DeadlineService) Sweep(ctx context.Context) {
	started := time.Now()
	sweepCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	submissions, err := s.submissions.ListNonTerminal(sweepCtx)
	if err != nil {
		s.logger.Error("deadline sweep listing failed", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	overdueCount := 0
	flipped := 0
	reminded := 0

	for _, submission := range submissions {
		submission := submission
		lapsed := now.After(submission.Deadline)
		if lapsed {
			overdueCount++
		}

		switch {
		case lapsed && !submission.Overdue:
			if err := s.setOverdue(sweepCtx, submission.ID, true); err != nil {
				s.logger.Error("failed to flag overdue submission",
					zap.String("submission_id", submission.ID), zap.Error(err))
				continue
			}
			flipped++
			if s.notifier != nil {
				s.notifier.OverdueAlert(sweepCtx, &submission)
			}
		case !lapsed && submission.Overdue:
			// deadline moved forward since the flag was set
			if err := s.setOverdue(sweepCtx, submission.ID, false); err != nil {
				s.logger.Error("failed to clear overdue flag",
					zap.String("submission_id", submission.ID), zap.Error(err))
			}
		case !lapsed && submission.Deadline.Sub(now) <= s.reminderWindow:
			if s.notifier != nil {
				status := Status(submission.Deadline, submission.Overdue, now)
				s.notifier.DeadlineReminder(sweepCtx, &submission, status.DisplayDays)
				reminded++
			}
		}
	}

	if s.metrics != nil {
		s.metrics.SetOverdueCount(overdueCount)
		s.metrics.ObserveSweepDuration(time.Since(started))
	}
	s.logger.Debug("deadline sweep finished",
		zap.Int("checked", len(submissions)),
		zap.Int("flagged_overdue", flipped),
		zap.Int("reminders", reminded),
		zap.Duration("elapsed", time.Since(started)))
}

// setOverdue bounds each flag update so one submission stuck behind a
// row lock cannot stall the whole sweep.
func (s *DeadlineService) setOverdue(ctx context.Context, submissionID string, overdue bool) error {
	updateCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	return s.submissions.SetOverdue(updateCtx, submissionID, overdue)
}
