package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type markStore interface {
	Upsert(ctx context.Context, marks []*models.StudentMark) error
	ListBySubmission(ctx context.Context, submissionID string) ([]models.StudentMark, error)
}

type markSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateValidation(ctx context.Context, submissionID string, validation models.ValidationInfo, completionPercentage float64) error
}

type rosterProvider interface {
	ListRoster(ctx context.Context, assignmentID string) ([]models.RosterStudent, error)
}

type markCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// MarkService records and lists per-student marks. Marks can only
// change while the submission is in DRAFT; totals, averages and grades
// are derived here and never accepted from callers.
type MarkService struct {
	marks       markStore
	submissions markSubmissionStore
	roster      rosterProvider
	validation  *ValidationService
	cache       markCacheInvalidator
	audit       auditLogger
	logger      *zap.Logger
}

// NewMarkService constructs the service.
func NewMarkService(marks markStore, submissions markSubmissionStore, roster rosterProvider, validation *ValidationService, cache markCacheInvalidator, audit auditLogger, logger *zap.Logger) *MarkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validation == nil {
		validation = NewValidationService(logger)
	}
	return &MarkService{
		marks:       marks,
		submissions: submissions,
		roster:      roster,
		validation:  validation,
		cache:       cache,
		audit:       audit,
		logger:      logger,
	}
}

// Record upserts marks for a submission and recomputes its validation
// snapshot. The whole payload is checked before anything is written:
// duplicate students, unknown students and scores outside the absolute
// range all fail the request without partial effects.
func (s *MarkService) Record(ctx context.Context, submissionID string, req dto.RecordMarksRequest, actor *models.JWTClaims) (*dto.RecordMarksResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if submission.Status.Terminal() {
		return nil, appErrors.ErrAlreadyFinalized
	}
	if submission.Status != models.SubmissionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrWrongState, "marks can only be recorded while the submission is in DRAFT")
	}

	roster, err := s.roster.ListRoster(ctx, submission.ModuleAssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module roster")
	}
	onRoster := make(map[string]models.RosterStudent, len(roster))
	for _, student := range roster {
		onRoster[student.StudentID] = student
	}

	seen := make(map[string]bool, len(req.Marks))
	rows := make([]*models.StudentMark, 0, len(req.Marks))
	for _, entry := range req.Marks {
		if seen[entry.StudentID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once in the payload", entry.StudentID))
		}
		seen[entry.StudentID] = true

		student, ok := onRoster[entry.StudentID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, fmt.Sprintf("student %s is not on the module roster", entry.StudentID))
		}
		for kind, score := range entry.Scores {
			if score < 0 || score > models.AbsoluteMaxScore {
				return nil, appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("student %s: %s score %.2f is outside [0, %.0f]", entry.StudentID, kind, score, models.AbsoluteMaxScore))
			}
		}

		registration := entry.RegistrationNumber
		if registration == "" {
			registration = student.RegistrationNumber
		}
		rows = append(rows, buildMark(submission.ID, entry, registration))
	}

	if err := s.marks.Upsert(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save marks")
	}

	all, err := s.marks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload marks")
	}
	result := s.validation.Validate(submission.Type, roster, all)
	if err := s.submissions.UpdateValidation(ctx, submission.ID, result.Info, result.CompletionPercentage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store validation result")
	}

	s.invalidateStatistics(ctx, submission.ID)
	if actor != nil {
		s.emitAudit(ctx, actor.UserID, models.AuditActionMarksUpsert, submission.ID)
	}

	return &dto.RecordMarksResponse{
		UpdatedCount: len(rows),
		Validation:   result.Info,
	}, nil
}

// List returns all marks of a submission.
func (s *MarkService) List(ctx context.Context, submissionID string) ([]models.StudentMark, error) {
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	marks, err := s.marks.ListBySubmission(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	return marks, nil
}

func (s *MarkService) invalidateStatistics(ctx context.Context, submissionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statisticsCacheKey(submissionID)); err != nil {
		s.logger.Warn("failed to invalidate statistics cache",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func (s *MarkService) emitAudit(ctx context.Context, userID, action, submissionID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &submissionID,
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func buildMark(submissionID string, entry dto.MarkEntry, registration string) *models.StudentMark {
	mark := &models.StudentMark{
		SubmissionID:       submissionID,
		StudentID:          entry.StudentID,
		RegistrationNumber: registration,
		Remark:             entry.Remark,
	}
	if entry.Remark == models.RemarkAbsent {
		mark.Scores = models.ComponentScores{}
		mark.Grade = models.GradeAbsent
		return mark
	}

	scores := make(models.ComponentScores, len(entry.Scores))
	total := 0.0
	for kind, score := range entry.Scores {
		scores[kind] = score
		total += score
	}
	mark.Scores = scores
	mark.Total = round2(total)
	if len(scores) > 0 {
		mark.Average = round2(total / float64(len(scores)))
	}
	mark.Grade = models.GradeFor(mark.Total)
	return mark
}
