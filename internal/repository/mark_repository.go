package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

const markColumns = `id, submission_id, student_id, registration_number, scores, average, total, grade, remark, created_at, updated_at`

// MarkRepository persists per-student marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository constructs the repository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// Upsert writes a batch of marks in one transaction, replacing any
// existing rows for the same student on the same submission.
func (r *MarkRepository) Upsert(ctx context.Context, marks []*models.StudentMark) error {
	if len(marks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert marks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT INTO student_marks
	(id, submission_id, student_id, registration_number, scores, average, total, grade, remark, created_at, updated_at)
	VALUES (:id, :submission_id, :student_id, :registration_number, :scores, :average, :total, :grade, :remark, :created_at, :updated_at)
	ON CONFLICT (submission_id, student_id) DO UPDATE SET
		registration_number = EXCLUDED.registration_number,
		scores = EXCLUDED.scores,
		average = EXCLUDED.average,
		total = EXCLUDED.total,
		grade = EXCLUDED.grade,
		remark = EXCLUDED.remark,
		updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, mark := range marks {
		if mark.ID == "" {
			mark.ID = uuid.NewString()
		}
		if mark.CreatedAt.IsZero() {
			mark.CreatedAt = now
		}
		mark.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, mark); err != nil {
			return fmt.Errorf("upsert student mark: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert marks: %w", err)
	}
	return nil
}

// ListBySubmission returns all marks for a submission ordered by
// registration number.
func (r *MarkRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.StudentMark, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_marks WHERE submission_id = $1 ORDER BY registration_number ASC`, markColumns)
	var marks []models.StudentMark
	if err := r.db.SelectContext(ctx, &marks, query, submissionID); err != nil {
		return nil, fmt.Errorf("list student marks: %w", err)
	}
	return marks, nil
}

// CountBySubmission returns how many students have mark rows.
func (r *MarkRepository) CountBySubmission(ctx context.Context, submissionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_marks WHERE submission_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, submissionID); err != nil {
		return 0, fmt.Errorf("count student marks: %w", err)
	}
	return count, nil
}
