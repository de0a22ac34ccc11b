package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

func TestAggregateMixedRoster(t *testing.T) {
	submission := &models.Submission{ID: "sub-1", Type: models.SubmissionTypeCAT}
	roster := []models.RosterStudent{
		{StudentID: "s1", RegistrationNumber: "REG-001"},
		{StudentID: "s2", RegistrationNumber: "REG-002"},
		{StudentID: "s3", RegistrationNumber: "REG-003"},
		{StudentID: "s4", RegistrationNumber: "REG-004"},
	}
	full := fullCATScores()
	partial := fullCATScores()
	delete(partial, models.ComponentCAT2)

	marks := []models.StudentMark{
		{StudentID: "s1", Scores: full, Total: 83, Grade: "A"},
		{StudentID: "s2", Scores: full, Total: 35, Grade: models.FailingGrade},
		{StudentID: "s3", Remark: models.RemarkAbsent, Grade: models.GradeAbsent},
		{StudentID: "s4", Scores: partial, Total: 55, Grade: "C"},
	}

	stats := Aggregate(submission, roster, marks)
	require.Equal(t, 4, stats.TotalStudents)
	require.Equal(t, 3, stats.StudentsWithCompleteMarks)
	require.Equal(t, 1, stats.StudentsWithIncompleteMarks)
	require.Equal(t, 1, stats.AbsentStudents)
	require.Equal(t, 75.0, stats.CompletionPercentage)
	require.Equal(t, 59.0, stats.AverageMarks)
	require.Equal(t, 50.0, stats.PassRate)
	require.Equal(t, 1, stats.GradeDistribution["A"])
	require.Equal(t, 1, stats.GradeDistribution[models.FailingGrade])
	require.Equal(t, 1, stats.GradeDistribution[models.GradeAbsent])
}

func TestAggregateEmptyRoster(t *testing.T) {
	submission := &models.Submission{ID: "sub-1", Type: models.SubmissionTypeExam}
	stats := Aggregate(submission, nil, nil)
	require.Equal(t, 0, stats.TotalStudents)
	require.Equal(t, 0.0, stats.CompletionPercentage)
	require.Equal(t, 0.0, stats.PassRate)
}

type fakeStatsCache struct {
	store map[string][]byte
	gets  int
	sets  int
}

func (f *fakeStatsCache) Get(_ context.Context, key string, dest interface{}) error {
	f.gets++
	if _, ok := f.store[key]; !ok {
		return appErrors.ErrCacheMiss
	}
	stats := dest.(*models.SubmissionStatistics)
	stats.SubmissionID = "sub-1"
	stats.TotalStudents = 9
	return nil
}

func (f *fakeStatsCache) Set(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	f.sets++
	if f.store == nil {
		f.store = map[string][]byte{}
	}
	f.store[key] = []byte("cached")
	return nil
}

type fakeStatsMarks struct {
	marks []models.StudentMark
}

func (f *fakeStatsMarks) Upsert(_ context.Context, _ []*models.StudentMark) error { return nil }

func (f *fakeStatsMarks) ListBySubmission(_ context.Context, _ string) ([]models.StudentMark, error) {
	return f.marks, nil
}

type fakeStatsRoster struct {
	roster []models.RosterStudent
}

func (f *fakeStatsRoster) ListRoster(_ context.Context, _ string) ([]models.RosterStudent, error) {
	return f.roster, nil
}

type fakeStatsSubmissions struct {
	submission *models.Submission
}

func (f *fakeStatsSubmissions) GetByID(_ context.Context, _ string) (*models.Submission, error) {
	return f.submission, nil
}

func TestForSubmissionUsesCache(t *testing.T) {
	cache := &fakeStatsCache{}
	svc := NewStatisticsService(
		&fakeStatsSubmissions{submission: &models.Submission{ID: "sub-1", Type: models.SubmissionTypeCAT}},
		&fakeStatsMarks{},
		&fakeStatsRoster{roster: []models.RosterStudent{{StudentID: "s1"}}},
		cache, time.Minute, nil,
	)

	first, err := svc.ForSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalStudents)
	require.Equal(t, 1, cache.sets)

	second, err := svc.ForSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Equal(t, 9, second.TotalStudents)
	require.Equal(t, 1, cache.sets)
}
