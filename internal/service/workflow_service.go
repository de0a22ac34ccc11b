package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type auditLogger interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type workflowSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
	Create(ctx context.Context, submission *models.Submission) error
}

// workflowNotifier receives the submission as loaded before the
// transition, so submission.Status still carries the previous state.
type workflowNotifier interface {
	StatusChanged(ctx context.Context, submission *models.Submission, newStatus models.SubmissionStatus, actorName string)
}

type transitionRecorder interface {
	ObserveTransition(from, to models.SubmissionStatus)
}

// WorkflowService drives submissions through the approval state
// machine. Every transition is applied atomically together with its
// workflow step under an optimistic version check, so two concurrent
// decisions on the same submission can never both land.
type WorkflowService struct {
	submissions workflowSubmissionStore
	marks       markStore
	audit       auditLogger
	notifier    workflowNotifier
	metrics     transitionRecorder
	logger      *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(submissions workflowSubmissionStore, marks markStore, audit auditLogger, notifier workflowNotifier, metrics transitionRecorder, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		submissions: submissions,
		marks:       marks,
		audit:       audit,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Submit moves a DRAFT submission into review. The submission must
// have passed validation, and the actor must be allowed to act at the
// entry step's processing level.
func (s *WorkflowService) Submit(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status.Terminal() {
		return nil, appErrors.ErrAlreadyFinalized
	}
	if submission.Status != models.SubmissionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrWrongState, "only a DRAFT submission can be submitted")
	}
	if !submission.Validation.IsValid {
		return nil, appErrors.ErrNotValid
	}

	step := submission.CurrentStep()
	if step == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "submission has no active workflow step")
	}
	if err := s.authorize(actor, step.Level); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := s.stepCompletion(submission, step, models.StepStatusCompleted, req.Comments, actor, now)
	params.Status = models.SubmissionStatusSubmitted
	params.SubmittedAt = &now
	params.CurrentStepOrder = nextStepOrder(submission, step.StepOrder)

	if err := s.apply(ctx, params); err != nil {
		return nil, err
	}
	s.finish(ctx, submission, models.SubmissionStatusSubmitted, models.AuditActionSubmissionSubmit, actor)
	return s.respond(ctx, submissionID)
}

// Approve completes the current review step. When the final required
// step completes the submission becomes APPROVED; otherwise review
// advances to the next step.
func (s *WorkflowService) Approve(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	submission, step, err := s.loadForReview(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, step.Level); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := s.stepCompletion(submission, step, models.StepStatusCompleted, req.Comments, actor, now)
	params.SubmittedAt = submission.SubmittedAt

	target := models.SubmissionStatusSubmitted
	if step.StepOrder >= submission.FinalRequiredStepOrder() {
		target = models.SubmissionStatusApproved
		params.CompletedAt = &now
		params.CurrentStepOrder = step.StepOrder
	} else {
		params.CurrentStepOrder = nextStepOrder(submission, step.StepOrder)
	}
	params.Status = target

	if err := s.apply(ctx, params); err != nil {
		return nil, err
	}
	s.finish(ctx, submission, target, models.AuditActionApprove, actor)
	return s.respond(ctx, submissionID)
}

// Reject refuses the submission at the current review step. Comments
// are mandatory so the lecturer knows what to fix.
func (s *WorkflowService) Reject(ctx context.Context, submissionID string, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	if strings.TrimSpace(req.Comments) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection requires comments")
	}
	submission, step, err := s.loadForReview(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, step.Level); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	params := s.stepCompletion(submission, step, models.StepStatusRejected, req.Comments, actor, now)
	params.Status = models.SubmissionStatusRejected
	params.SubmittedAt = submission.SubmittedAt
	params.CompletedAt = &now
	params.CurrentStepOrder = step.StepOrder

	if err := s.apply(ctx, params); err != nil {
		return nil, err
	}
	s.finish(ctx, submission, models.SubmissionStatusRejected, models.AuditActionReject, actor)
	return s.respond(ctx, submissionID)
}

// Reopen starts a fresh DRAFT submission from a REJECTED one so the
// marks can be corrected and resubmitted. The rejected submission is
// never touched: it keeps its steps, officers and comments as history.
// Marks carry over into the new draft, so its validation snapshot
// carries over too.
func (s *WorkflowService) Reopen(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.TransitionResponse, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrWrongState, "only a REJECTED submission can be reopened")
	}
	if err := s.authorize(actor, models.LevelHOD); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &models.Submission{
		ModuleAssignmentID:   submission.ModuleAssignmentID,
		Type:                 submission.Type,
		Status:               models.SubmissionStatusDraft,
		Deadline:             submission.Deadline,
		Overdue:              submission.Deadline.Before(now),
		Validation:           submission.Validation,
		CompletionPercentage: submission.CompletionPercentage,
	}
	if err := s.submissions.Create(ctx, fresh); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reopened submission")
	}
	if err := s.copyMarks(ctx, submission.ID, fresh.ID); err != nil {
		return nil, err
	}
	s.finish(ctx, submission, models.SubmissionStatusDraft, models.AuditActionReopen, actor)
	return s.respond(ctx, fresh.ID)
}

func (s *WorkflowService) copyMarks(ctx context.Context, fromID, toID string) error {
	if s.marks == nil {
		return nil
	}
	existing, err := s.marks.ListBySubmission(ctx, fromID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks for reopen")
	}
	if len(existing) == 0 {
		return nil
	}
	copies := make([]*models.StudentMark, 0, len(existing))
	for i := range existing {
		mark := existing[i]
		mark.ID = ""
		mark.SubmissionID = toID
		mark.CreatedAt = time.Time{}
		copies = append(copies, &mark)
	}
	if err := s.marks.Upsert(ctx, copies); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to carry marks into reopened submission")
	}
	return nil
}

func (s *WorkflowService) load(ctx context.Context, submissionID string) (*models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

func (s *WorkflowService) loadForReview(ctx context.Context, submissionID string) (*models.Submission, *models.WorkflowStep, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, nil, err
	}
	if submission.Status.Terminal() {
		return nil, nil, appErrors.ErrAlreadyFinalized
	}
	if submission.Status != models.SubmissionStatusSubmitted {
		return nil, nil, appErrors.Clone(appErrors.ErrWrongState, "submission is not under review")
	}
	step := submission.CurrentStep()
	if step == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "submission has no active workflow step")
	}
	return submission, step, nil
}

func (s *WorkflowService) authorize(actor *models.JWTClaims, level models.ProcessingLevel) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.SatisfiesLevel(level) {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *WorkflowService) stepCompletion(submission *models.Submission, step *models.WorkflowStep, status models.StepStatus, comments string, actor *models.JWTClaims, now time.Time) repository.TransitionParams {
	since := submission.CreatedAt
	for _, prior := range submission.Steps {
		if prior.StepOrder < step.StepOrder && prior.CompletedAt != nil && prior.CompletedAt.After(since) {
			since = *prior.CompletedAt
		}
	}
	hours := round2(now.Sub(since).Hours())

	params := repository.TransitionParams{
		SubmissionID:        submission.ID,
		ExpectedVersion:     submission.Version,
		StepID:              step.ID,
		StepStatus:          status,
		StepCompletedAt:     &now,
		StepProcessingHours: &hours,
	}
	if actor != nil {
		params.StepOfficerID = &actor.UserID
		params.StepOfficerName = &actor.FullName
	}
	if trimmed := strings.TrimSpace(comments); trimmed != "" {
		params.StepComments = &trimmed
	}
	return params
}

func (s *WorkflowService) apply(ctx context.Context, params repository.TransitionParams) error {
	if err := s.submissions.ApplyTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrVersionConflict
		}
		if errors.Is(err, repository.ErrCommitUnconfirmed) {
			// The commit may still have landed. Tell the caller the
			// transition outcome is unknown rather than claiming failure.
			return appErrors.Clone(appErrors.ErrIndeterminate, "workflow transition outcome unknown, reload the submission before retrying")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply workflow transition")
	}
	return nil
}

func (s *WorkflowService) finish(ctx context.Context, submission *models.Submission, target models.SubmissionStatus, action string, actor *models.JWTClaims) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(submission.Status, target)
	}
	if s.audit != nil && actor != nil {
		log := &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     action,
			Resource:   "submission",
			ResourceID: &submission.ID,
		}
		if err := s.audit.Create(ctx, log); err != nil {
			s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
	if s.notifier != nil {
		actorName := ""
		if actor != nil {
			actorName = actor.FullName
		}
		s.notifier.StatusChanged(ctx, submission, target, actorName)
	}
}

func (s *WorkflowService) respond(ctx context.Context, submissionID string) (*dto.TransitionResponse, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return &dto.TransitionResponse{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		Steps:        submission.Steps,
	}, nil
}

func nextStepOrder(submission *models.Submission, current int) int {
	next := current
	for _, step := range submission.Steps {
		if step.StepOrder > current && (next == current || step.StepOrder < next) {
			next = step.StepOrder
		}
	}
	return next
}
