package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

func newMarkRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMarkRepositoryUpsertBatch(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()

	repo := NewMarkRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_marks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_marks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	marks := []*models.StudentMark{
		{
			SubmissionID:       "sub-1",
			StudentID:          "student-1",
			RegistrationNumber: "REG-001",
			Scores:             models.ComponentScores{models.ComponentCAT1: 25, models.ComponentCAT2: 28},
			Total:              53,
			Grade:              "C",
		},
		{
			SubmissionID:       "sub-1",
			StudentID:          "student-2",
			RegistrationNumber: "REG-002",
			Remark:             models.RemarkAbsent,
			Grade:              models.FailingGrade,
		},
	}
	require.NoError(t, repo.Upsert(context.Background(), marks))
	require.NotEmpty(t, marks[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRepositoryListBySubmission(t *testing.T) {
	db, mock, cleanup := newMarkRepoMock(t)
	defer cleanup()

	repo := NewMarkRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "submission_id", "student_id", "registration_number", "scores",
		"average", "total", "grade", "remark", "created_at", "updated_at",
	}).AddRow("mark-1", "sub-1", "student-1", "REG-001", []byte(`{"cat1":25}`),
		25.0, 25.0, "F", "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, submission_id, student_id")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	marks, err := repo.ListBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, marks, 1)
	require.Equal(t, 25.0, marks[0].Scores[models.ComponentCAT1])
	require.NoError(t, mock.ExpectationsWereMet())
}
