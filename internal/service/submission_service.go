package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type submissionStore interface {
	CreateBatch(ctx context.Context, submissions []*models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ListByModule(ctx context.Context, moduleAssignmentID string) ([]models.Submission, error)
	GetLatestByModuleAndType(ctx context.Context, moduleAssignmentID string, submissionType models.SubmissionType) (*models.Submission, error)
	FindActiveByModuleAndType(ctx context.Context, moduleAssignmentID string, submissionType models.SubmissionType) (*models.Submission, error)
	BulkUpdateDeadline(ctx context.Context, ids []string, deadline time.Time) (int64, error)
}

type assignmentProvider interface {
	FindByID(ctx context.Context, id string) (*models.ModuleAssignment, error)
}

// SubmissionService manages submission lifecycles outside the
// workflow transitions: creation, lookups and deadline maintenance.
type SubmissionService struct {
	submissions submissionStore
	assignments assignmentProvider
	audit       auditLogger
	logger      *zap.Logger
}

// NewSubmissionService constructs the service.
func NewSubmissionService(submissions submissionStore, assignments assignmentProvider, audit auditLogger, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		audit:       audit,
		logger:      logger,
	}
}

// Create opens the requested assessment tracks for a module
// assignment. The whole request is validated first and persisted in
// one transaction, so a duplicate track leaves nothing behind.
func (s *SubmissionService) Create(ctx context.Context, moduleAssignmentID string, req dto.CreateSubmissionsRequest, actor *models.JWTClaims) (*dto.CreateSubmissionsResponse, error) {
	if _, err := s.assignments.FindByID(ctx, moduleAssignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module assignment")
	}

	seen := make(map[models.SubmissionType]bool, len(req.Items))
	submissions := make([]*models.Submission, 0, len(req.Items))
	for _, item := range req.Items {
		if !item.Type.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown submission type %q", item.Type))
		}
		if item.Deadline.IsZero() {
			return nil, appErrors.ErrInvalidDeadline
		}
		if seen[item.Type] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("submission type %s requested more than once", item.Type))
		}
		seen[item.Type] = true

		if _, err := s.submissions.FindActiveByModuleAndType(ctx, moduleAssignmentID, item.Type); err == nil {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission, fmt.Sprintf("an active %s submission already exists for this module", item.Type))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submissions")
		}

		deadline := item.Deadline.UTC()
		submissions = append(submissions, &models.Submission{
			ModuleAssignmentID: moduleAssignmentID,
			Type:               item.Type,
			Deadline:           deadline,
			Overdue:            deadline.Before(time.Now().UTC()),
		})
	}

	if err := s.submissions.CreateBatch(ctx, submissions); err != nil {
		if errors.Is(err, repository.ErrActiveSubmissionExists) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission, "an active submission already exists for this module")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submissions")
	}

	resp := &dto.CreateSubmissionsResponse{}
	for _, submission := range submissions {
		summary := summarize(submission)
		switch submission.Type {
		case models.SubmissionTypeCAT:
			resp.CAT = summary
		case models.SubmissionTypeExam:
			resp.Exam = summary
		}
		s.emitAudit(ctx, actor, models.AuditActionSubmissionCreate, submission.ID)
	}
	return resp, nil
}

// Get returns one submission with its workflow steps.
func (s *SubmissionService) Get(ctx context.Context, submissionID string) (*models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Details aggregates the latest submission of each track together with
// the derived overall status: REJECTED when any track is rejected,
// APPROVED when every track is approved, otherwise the least advanced
// track's status. Overall overdue is true when any track is overdue.
func (s *SubmissionService) Details(ctx context.Context, moduleAssignmentID string) (*dto.SubmissionDetailsResponse, error) {
	cat, err := s.latest(ctx, moduleAssignmentID, models.SubmissionTypeCAT)
	if err != nil {
		return nil, err
	}
	exam, err := s.latest(ctx, moduleAssignmentID, models.SubmissionTypeExam)
	if err != nil {
		return nil, err
	}
	if cat == nil && exam == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no submissions exist for this module")
	}

	return &dto.SubmissionDetailsResponse{
		CATSubmission:  cat,
		ExamSubmission: exam,
		Overall:        deriveOverall(cat, exam),
	}, nil
}

// ListByModule returns every submission of a module, newest first.
func (s *SubmissionService) ListByModule(ctx context.Context, moduleAssignmentID string) ([]models.Submission, error) {
	submissions, err := s.submissions.ListByModule(ctx, moduleAssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// BulkUpdateDeadlines moves the deadline on the given non-terminal
// submissions. Terminal submissions are silently skipped; the response
// reports how many rows actually changed.
func (s *SubmissionService) BulkUpdateDeadlines(ctx context.Context, req dto.BulkDeadlineUpdateRequest, actor *models.JWTClaims) (*dto.BulkDeadlineUpdateResponse, error) {
	if req.Deadline.IsZero() {
		return nil, appErrors.ErrInvalidDeadline
	}
	if !req.Deadline.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDeadline, "new deadline must be in the future")
	}
	updated, err := s.submissions.BulkUpdateDeadline(ctx, req.SubmissionIDs, req.Deadline.UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update deadlines")
	}
	for _, id := range req.SubmissionIDs {
		s.emitAudit(ctx, actor, models.AuditActionDeadlineUpdate, id)
	}
	return &dto.BulkDeadlineUpdateResponse{Updated: int(updated)}, nil
}

func (s *SubmissionService) latest(ctx context.Context, moduleAssignmentID string, submissionType models.SubmissionType) (*models.Submission, error) {
	submission, err := s.submissions.GetLatestByModuleAndType(ctx, moduleAssignmentID, submissionType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest submission")
	}
	return submission, nil
}

func (s *SubmissionService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, submissionID string) {
	if s.audit == nil || actor == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &submissionID,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func summarize(submission *models.Submission) *dto.SubmissionSummary {
	return &dto.SubmissionSummary{
		ID:                   submission.ID,
		Type:                 submission.Type,
		Status:               submission.Status,
		Deadline:             submission.Deadline,
		Overdue:              submission.Overdue,
		CompletionPercentage: submission.CompletionPercentage,
		SubmittedAt:          submission.SubmittedAt,
		CompletedAt:          submission.CompletedAt,
	}
}

// deriveOverall collapses the module's tracks into one status:
// REJECTED if any track is rejected, APPROVED only when every track is
// approved, otherwise the more advanced track capped at SUBMITTED.
func deriveOverall(tracks ...*models.Submission) dto.OverallSubmission {
	overall := dto.OverallSubmission{Status: models.SubmissionStatusDraft}
	present := 0
	highest := -1
	allApproved := true
	anyRejected := false

	for _, track := range tracks {
		if track == nil {
			continue
		}
		present++
		overall.Overdue = overall.Overdue || track.Overdue
		if track.Status == models.SubmissionStatusRejected {
			anyRejected = true
			continue
		}
		if track.Status != models.SubmissionStatusApproved {
			allApproved = false
		}
		if rank := track.Status.Rank(); rank > highest {
			highest = rank
			overall.Status = track.Status
		}
	}

	switch {
	case present == 0:
		overall.Status = models.SubmissionStatusDraft
	case anyRejected:
		overall.Status = models.SubmissionStatusRejected
	case allApproved:
		overall.Status = models.SubmissionStatusApproved
	case overall.Status == models.SubmissionStatusApproved:
		overall.Status = models.SubmissionStatusSubmitted
	}
	return overall
}
