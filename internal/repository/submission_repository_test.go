package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSubmissionRepositoryCreateSeedsSteps(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WithArgs("assignment-1:CAT").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submissions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_steps")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_steps")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	submission := &models.Submission{
		ModuleAssignmentID: "assignment-1",
		Type:               models.SubmissionTypeCAT,
		Deadline:           time.Now().Add(72 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), submission))
	require.NotEmpty(t, submission.ID)
	require.Equal(t, models.SubmissionStatusDraft, submission.Status)
	require.Len(t, submission.Steps, 2)
	require.Equal(t, submission.ID, submission.Steps[0].SubmissionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryCreateRefusesActiveTrack(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WithArgs("assignment-1:CAT").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	submission := &models.Submission{
		ModuleAssignmentID: "assignment-1",
		Type:               models.SubmissionTypeCAT,
		Deadline:           time.Now().Add(72 * time.Hour),
	}
	err := repo.Create(context.Background(), submission)
	require.ErrorIs(t, err, ErrActiveSubmissionExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryApplyTransitionVersionConflict(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_steps")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:     "sub-1",
		ExpectedVersion:  3,
		Status:           models.SubmissionStatusSubmitted,
		SubmittedAt:      &now,
		CurrentStepOrder: 2,
		StepID:           "step-1",
		StepStatus:       models.StepStatusCompleted,
		StepCompletedAt:  &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = repo.ApplyTransition(context.Background(), TransitionParams{
		SubmissionID:    "sub-1",
		ExpectedVersion: 2,
		Status:          models.SubmissionStatusSubmitted,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryGetByIDLoadsSteps(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	now := time.Now()

	submissionRows := sqlmock.NewRows([]string{
		"id", "module_assignment_id", "type", "status", "deadline", "submitted_at", "completed_at",
		"completion_percentage", "validation", "mark_sheet", "current_step_order", "overdue", "version",
		"created_at", "updated_at",
	}).AddRow("sub-1", "assignment-1", "CAT", "DRAFT", now.Add(48*time.Hour), nil, nil,
		0.0, nil, nil, 1, false, 0, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, module_assignment_id, type, status")).
		WithArgs("sub-1").
		WillReturnRows(submissionRows)

	stepRows := sqlmock.NewRows([]string{
		"id", "submission_id", "name", "level", "officer_id", "officer_name", "status",
		"completed_at", "comments", "step_order", "required", "processing_time_hours",
	}).
		AddRow("step-1", "sub-1", "Lecturer Entry", "LECTURER", nil, nil, "PENDING", nil, nil, 1, true, nil).
		AddRow("step-2", "sub-1", "HOD Review", "HOD", nil, nil, "PENDING", nil, nil, 2, true, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, submission_id, name, level")).
		WithArgs("sub-1").
		WillReturnRows(stepRows)

	found, err := repo.GetByID(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, "sub-1", found.ID)
	require.Len(t, found.Steps, 2)
	require.Equal(t, models.LevelHOD, found.Steps[1].Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryBulkUpdateDeadline(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()

	repo := NewSubmissionRepository(db)
	deadline := time.Now().Add(7 * 24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	updated, err := repo.BulkUpdateDeadline(context.Background(), []string{"sub-1", "sub-2"}, deadline)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)
	require.NoError(t, mock.ExpectationsWereMet())
}
