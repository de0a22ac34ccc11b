package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

// ErrCommitUnconfirmed wraps a transaction commit failure. The commit
// may or may not have landed; callers must not assume either outcome.
var ErrCommitUnconfirmed = errors.New("transaction commit outcome unknown")

// ErrActiveSubmissionExists signals that a DRAFT or SUBMITTED row for
// the same (module assignment, type) already holds the track.
var ErrActiveSubmissionExists = errors.New("active submission already exists")

const submissionColumns = `id, module_assignment_id, type, status, deadline, submitted_at, completed_at,
       completion_percentage, validation, mark_sheet, current_step_order, overdue, version, created_at, updated_at`

const stepColumns = `id, submission_id, name, level, officer_id, officer_name, status, completed_at,
       comments, step_order, required, processing_time_hours`

// SubmissionRepository persists assessment submissions and their
// workflow steps.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a submission together with its workflow steps seeded
// from the type's step template, in one transaction.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertTx(ctx, tx, submission); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit create submission: %v", ErrCommitUnconfirmed, err)
	}
	return nil
}

// CreateBatch inserts several submissions atomically. Used when a
// module requests both tracks in one call: either all rows land or
// none do.
func (r *SubmissionRepository) CreateBatch(ctx context.Context, submissions []*models.Submission) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submissions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, submission := range submissions {
		if err := r.insertTx(ctx, tx, submission); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit create submissions: %v", ErrCommitUnconfirmed, err)
	}
	return nil
}

func (r *SubmissionRepository) insertTx(ctx context.Context, tx *sqlx.Tx, submission *models.Submission) error {
	now := time.Now().UTC()
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusDraft
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	if len(submission.Steps) == 0 {
		for i, entry := range models.StepTemplate(submission.Type) {
			submission.Steps = append(submission.Steps, models.WorkflowStep{
				Name:      entry.Name,
				Level:     entry.Level,
				Required:  entry.Required,
				StepOrder: i + 1,
			})
		}
	}
	if submission.CurrentStepOrder == 0 && len(submission.Steps) > 0 {
		submission.CurrentStepOrder = submission.Steps[0].StepOrder
	}

	// Serialize concurrent creates on the same track: the advisory lock
	// is scoped to this transaction and keyed on (module assignment,
	// type), so the existence check below cannot race another insert.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		submission.ModuleAssignmentID+":"+string(submission.Type)); err != nil {
		return fmt.Errorf("lock submission track: %w", err)
	}
	var active bool
	if err := tx.GetContext(ctx, &active, `SELECT EXISTS (
		SELECT 1 FROM submissions
		WHERE module_assignment_id = $1 AND type = $2 AND status IN ($3, $4))`,
		submission.ModuleAssignmentID, submission.Type,
		models.SubmissionStatusDraft, models.SubmissionStatusSubmitted); err != nil {
		return fmt.Errorf("check active submission: %w", err)
	}
	if active {
		return ErrActiveSubmissionExists
	}

	const query = `INSERT INTO submissions
	(id, module_assignment_id, type, status, deadline, submitted_at, completed_at, completion_percentage,
	 validation, mark_sheet, current_step_order, overdue, version, created_at, updated_at)
	VALUES (:id, :module_assignment_id, :type, :status, :deadline, :submitted_at, :completed_at, :completion_percentage,
	 :validation, :mark_sheet, :current_step_order, :overdue, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	const stepQuery = `INSERT INTO workflow_steps
	(id, submission_id, name, level, officer_id, officer_name, status, completed_at, comments, step_order, required, processing_time_hours)
	VALUES (:id, :submission_id, :name, :level, :officer_id, :officer_name, :status, :completed_at, :comments, :step_order, :required, :processing_time_hours)`
	for i := range submission.Steps {
		step := &submission.Steps[i]
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.SubmissionID = submission.ID
		if step.Status == "" {
			step.Status = models.StepStatusPending
		}
		if _, err := tx.NamedExecContext(ctx, stepQuery, step); err != nil {
			return fmt.Errorf("insert workflow step: %w", err)
		}
	}
	return nil
}

// GetByID fetches a submission with its workflow steps.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	submission.Steps = steps
	return &submission, nil
}

func (r *SubmissionRepository) listSteps(ctx context.Context, submissionID string) ([]models.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_steps WHERE submission_id = $1 ORDER BY step_order ASC`, stepColumns)
	var steps []models.WorkflowStep
	if err := r.db.SelectContext(ctx, &steps, query, submissionID); err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	return steps, nil
}

// ListByModule returns all submissions for a module assignment, latest
// first. Steps are not loaded.
func (r *SubmissionRepository) ListByModule(ctx context.Context, moduleAssignmentID string) ([]models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE module_assignment_id = $1 ORDER BY created_at DESC`, submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, moduleAssignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// GetLatestByModuleAndType returns the newest submission of one track
// for a module, with steps, or sql.ErrNoRows.
func (r *SubmissionRepository) GetLatestByModuleAndType(ctx context.Context, moduleAssignmentID string, submissionType models.SubmissionType) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions
	WHERE module_assignment_id = $1 AND type = $2
	ORDER BY created_at DESC LIMIT 1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, moduleAssignmentID, submissionType); err != nil {
		return nil, err
	}
	steps, err := r.listSteps(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	submission.Steps = steps
	return &submission, nil
}

// FindActiveByModuleAndType returns a non-terminal submission of the
// given track, if one exists. Guards duplicate creation: APPROVED and
// REJECTED rows are history and never block a new submission.
func (r *SubmissionRepository) FindActiveByModuleAndType(ctx context.Context, moduleAssignmentID string, submissionType models.SubmissionType) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions
	WHERE module_assignment_id = $1 AND type = $2 AND status IN ($3, $4)
	ORDER BY created_at DESC LIMIT 1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, moduleAssignmentID, submissionType, models.SubmissionStatusDraft, models.SubmissionStatusSubmitted); err != nil {
		return nil, err
	}
	return &submission, nil
}

// TransitionParams captures one atomic submission state change plus
// the workflow step it completes or rejects.
type TransitionParams struct {
	SubmissionID     string
	ExpectedVersion  int64
	Status           models.SubmissionStatus
	SubmittedAt      *time.Time
	CompletedAt      *time.Time
	CurrentStepOrder int

	StepID              string
	StepStatus          models.StepStatus
	StepOfficerID       *string
	StepOfficerName     *string
	StepComments        *string
	StepCompletedAt     *time.Time
	StepProcessingHours *float64
}

// ApplyTransition moves a submission and one of its steps in a single
// transaction, guarded by the optimistic version column. A stale
// version leaves the database untouched and returns sql.ErrNoRows.
func (r *SubmissionRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `UPDATE submissions
	SET status = :status, submitted_at = :submitted_at, completed_at = :completed_at,
	    current_step_order = :current_step_order, version = version + 1, updated_at = :updated_at
	WHERE id = :id AND version = :version`
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                 params.SubmissionID,
		"version":            params.ExpectedVersion,
		"status":             params.Status,
		"submitted_at":       params.SubmittedAt,
		"completed_at":       params.CompletedAt,
		"current_step_order": params.CurrentStepOrder,
		"updated_at":         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update submission state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	if params.StepID != "" {
		const stepQuery = `UPDATE workflow_steps
		SET status = :status, officer_id = :officer_id, officer_name = :officer_name,
		    comments = :comments, completed_at = :completed_at, processing_time_hours = :processing_time_hours
		WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, stepQuery, map[string]interface{}{
			"id":                    params.StepID,
			"status":                params.StepStatus,
			"officer_id":            params.StepOfficerID,
			"officer_name":          params.StepOfficerName,
			"comments":              params.StepComments,
			"completed_at":          params.StepCompletedAt,
			"processing_time_hours": params.StepProcessingHours,
		}); err != nil {
			return fmt.Errorf("update workflow step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transition: %v", ErrCommitUnconfirmed, err)
	}
	return nil
}

// UpdateValidation stores a recomputed validation snapshot and the
// completion percentage derived from it.
func (r *SubmissionRepository) UpdateValidation(ctx context.Context, submissionID string, validation models.ValidationInfo, completionPercentage float64) error {
	const query = `UPDATE submissions
	SET validation = $1, completion_percentage = $2, updated_at = $3
	WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, validation, completionPercentage, time.Now().UTC(), submissionID); err != nil {
		return fmt.Errorf("update submission validation: %w", err)
	}
	return nil
}

// UpdateMarkSheet records the latest finished mark sheet export.
func (r *SubmissionRepository) UpdateMarkSheet(ctx context.Context, submissionID string, info *models.MarkSheetInfo) error {
	const query = `UPDATE submissions SET mark_sheet = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, info, time.Now().UTC(), submissionID); err != nil {
		return fmt.Errorf("update submission mark sheet: %w", err)
	}
	return nil
}

// ListNonTerminal returns submissions still in DRAFT or SUBMITTED.
// Powers the overdue sweep.
func (r *SubmissionRepository) ListNonTerminal(ctx context.Context) ([]models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE status IN ($1, $2)`, submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, models.SubmissionStatusDraft, models.SubmissionStatusSubmitted); err != nil {
		return nil, fmt.Errorf("list non-terminal submissions: %w", err)
	}
	return submissions, nil
}

// SetOverdue flips the overdue flag. Does not bump the version:
// overdue is an observation, not a competing workflow mutation.
func (r *SubmissionRepository) SetOverdue(ctx context.Context, submissionID string, overdue bool) error {
	const query = `UPDATE submissions SET overdue = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, overdue, time.Now().UTC(), submissionID); err != nil {
		return fmt.Errorf("set submission overdue: %w", err)
	}
	return nil
}

// BulkUpdateDeadline moves the deadline for the given non-terminal
// submissions and clears overdue when the new deadline is in the
// future. Returns the number of rows changed.
func (r *SubmissionRepository) BulkUpdateDeadline(ctx context.Context, ids []string, deadline time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, deadline, deadline.After(time.Now().UTC()), time.Now().UTC())
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE submissions
	SET deadline = $1, overdue = CASE WHEN $2 THEN false ELSE overdue END, updated_at = $3
	WHERE id IN (%s) AND status IN ('%s', '%s')`,
		strings.Join(placeholders, ","), models.SubmissionStatusDraft, models.SubmissionStatusSubmitted)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update deadline: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check deadline update rows: %w", err)
	}
	return rows, nil
}
