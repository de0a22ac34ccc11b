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

const jobColumns = `id, submission_id, format, status, progress, result_url, size_bytes,
       created_by, created_at, finished_at, error_message`

// ExportRepository persists mark sheet export jobs.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a queued job row.
func (r *ExportRepository) Create(ctx context.Context, job *models.MarkSheetJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.MarkSheetStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO mark_sheet_jobs
	(id, submission_id, format, status, progress, result_url, size_bytes, created_by, created_at, finished_at, error_message)
	VALUES (:id, :submission_id, :format, :status, :progress, :result_url, :size_bytes, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create mark sheet job: %w", err)
	}
	return nil
}

// GetByID fetches a job.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.MarkSheetJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM mark_sheet_jobs WHERE id = $1`, jobColumns)
	var job models.MarkSheetJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobParams groups the mutable job columns. Nil fields stay
// untouched.
type UpdateJobParams struct {
	Status       *models.MarkSheetJobStatus
	Progress     *int
	ResultURL    *string
	SizeBytes    *int64
	FinishedAt   *time.Time
	ErrorMessage *string
}

// Update applies a partial job update.
func (r *ExportRepository) Update(ctx context.Context, id string, params UpdateJobParams) error {
	setParts := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	if params.Status != nil {
		args = append(args, *params.Status)
		setParts = append(setParts, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Progress != nil {
		args = append(args, *params.Progress)
		setParts = append(setParts, fmt.Sprintf("progress = $%d", len(args)))
	}
	if params.ResultURL != nil {
		args = append(args, *params.ResultURL)
		setParts = append(setParts, fmt.Sprintf("result_url = $%d", len(args)))
	}
	if params.SizeBytes != nil {
		args = append(args, *params.SizeBytes)
		setParts = append(setParts, fmt.Sprintf("size_bytes = $%d", len(args)))
	}
	if params.FinishedAt != nil {
		args = append(args, *params.FinishedAt)
		setParts = append(setParts, fmt.Sprintf("finished_at = $%d", len(args)))
	}
	if params.ErrorMessage != nil {
		args = append(args, *params.ErrorMessage)
		setParts = append(setParts, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if len(setParts) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE mark_sheet_jobs SET %s WHERE id = $%d", strings.Join(setParts, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update mark sheet job: %w", err)
	}
	return nil
}

// ListUnfinished returns jobs still queued or processing. Used on
// startup to recover work interrupted by a restart.
func (r *ExportRepository) ListUnfinished(ctx context.Context) ([]models.MarkSheetJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM mark_sheet_jobs WHERE status IN ($1, $2) ORDER BY created_at ASC`, jobColumns)
	var jobs []models.MarkSheetJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.MarkSheetStatusQueued, models.MarkSheetStatusProcessing); err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs older than the cutoff so
// their artifacts can be removed.
func (r *ExportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.MarkSheetJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM mark_sheet_jobs WHERE status = $1 AND finished_at < $2`, jobColumns)
	var jobs []models.MarkSheetJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.MarkSheetStatusFinished, cutoff); err != nil {
		return nil, fmt.Errorf("list finished jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job row.
func (r *ExportRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mark_sheet_jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete mark sheet job: %w", err)
	}
	return nil
}
