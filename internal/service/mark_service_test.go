package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

type fakeMarkStore struct {
	rows      map[string]*models.StudentMark
	upserts   int
	upsertErr error
}

func (f *fakeMarkStore) Upsert(_ context.Context, marks []*models.StudentMark) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.rows == nil {
		f.rows = map[string]*models.StudentMark{}
	}
	for _, mark := range marks {
		f.rows[mark.StudentID] = mark
	}
	f.upserts++
	return nil
}

func (f *fakeMarkStore) ListBySubmission(_ context.Context, _ string) ([]models.StudentMark, error) {
	out := make([]models.StudentMark, 0, len(f.rows))
	for _, mark := range f.rows {
		out = append(out, *mark)
	}
	return out, nil
}

type fakeMarkSubmissions struct {
	submission       *models.Submission
	validation       *models.ValidationInfo
	completionStored float64
}

func (f *fakeMarkSubmissions) GetByID(_ context.Context, id string) (*models.Submission, error) {
	if f.submission == nil || f.submission.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.submission, nil
}

func (f *fakeMarkSubmissions) UpdateValidation(_ context.Context, _ string, validation models.ValidationInfo, completion float64) error {
	f.validation = &validation
	f.completionStored = completion
	return nil
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) DeleteByPattern(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

func markServiceFixture(status models.SubmissionStatus) (*MarkService, *fakeMarkStore, *fakeMarkSubmissions, *fakeInvalidator) {
	marks := &fakeMarkStore{}
	submissions := &fakeMarkSubmissions{submission: &models.Submission{
		ID:                 "sub-1",
		ModuleAssignmentID: "assignment-1",
		Type:               models.SubmissionTypeCAT,
		Status:             status,
	}}
	roster := &fakeStatsRoster{roster: []models.RosterStudent{
		{StudentID: "s1", RegistrationNumber: "REG-001"},
		{StudentID: "s2", RegistrationNumber: "REG-002"},
	}}
	cache := &fakeInvalidator{}
	svc := NewMarkService(marks, submissions, roster, nil, cache, nil, nil)
	return svc, marks, submissions, cache
}

func TestRecordDerivesTotalsAndGrades(t *testing.T) {
	svc, marks, submissions, cache := markServiceFixture(models.SubmissionStatusDraft)

	resp, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{
			{StudentID: "s1", Scores: map[models.ComponentKind]float64(fullCATScores())},
			{StudentID: "s2", Remark: models.RemarkAbsent},
		},
	}, lecturerClaims())
	require.NoError(t, err)
	require.Equal(t, 2, resp.UpdatedCount)
	require.True(t, resp.Validation.IsComplete)
	require.True(t, resp.Validation.IsValid)

	stored := marks.rows["s1"]
	require.Equal(t, 83.0, stored.Total)
	require.Equal(t, "A", stored.Grade)
	require.Equal(t, "REG-001", stored.RegistrationNumber)

	absent := marks.rows["s2"]
	require.Equal(t, models.GradeAbsent, absent.Grade)
	require.True(t, absent.Absent())

	require.NotNil(t, submissions.validation)
	require.Equal(t, 100.0, submissions.completionStored)
	require.Equal(t, []string{statisticsCacheKey("sub-1")}, cache.patterns)
}

func TestRecordSamePayloadTwiceIsIdempotent(t *testing.T) {
	svc, marks, submissions, _ := markServiceFixture(models.SubmissionStatusDraft)

	req := dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{
			{StudentID: "s1", Scores: map[models.ComponentKind]float64(fullCATScores())},
			{StudentID: "s2", Remark: models.RemarkAbsent},
		},
	}

	first, err := svc.Record(context.Background(), "sub-1", req, lecturerClaims())
	require.NoError(t, err)
	firstRow := *marks.rows["s1"]

	second, err := svc.Record(context.Background(), "sub-1", req, lecturerClaims())
	require.NoError(t, err)

	require.Len(t, marks.rows, 2)
	require.Equal(t, firstRow.Total, marks.rows["s1"].Total)
	require.Equal(t, firstRow.Grade, marks.rows["s1"].Grade)
	require.Equal(t, firstRow.Scores, marks.rows["s1"].Scores)
	require.Equal(t, first.Validation.IsComplete, second.Validation.IsComplete)
	require.Equal(t, first.Validation.IsValid, second.Validation.IsValid)
	require.Equal(t, first.Validation.ConsistencyScore, second.Validation.ConsistencyScore)
	require.Equal(t, first.Validation.Errors, second.Validation.Errors)
	require.Equal(t, first.Validation.MissingData, second.Validation.MissingData)
	require.Equal(t, first.UpdatedCount, second.UpdatedCount)
	require.Equal(t, 100.0, submissions.completionStored)
}

func TestRecordRejectsUnknownStudent(t *testing.T) {
	svc, marks, _, _ := markServiceFixture(models.SubmissionStatusDraft)

	_, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{{StudentID: "ghost", Scores: map[models.ComponentKind]float64{models.ComponentCAT1: 10}}},
	}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrUnknownStudent))
	require.Equal(t, 0, marks.upserts)
}

func TestRecordRejectsDuplicateStudents(t *testing.T) {
	svc, marks, _, _ := markServiceFixture(models.SubmissionStatusDraft)

	_, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{
			{StudentID: "s1", Scores: map[models.ComponentKind]float64{models.ComponentCAT1: 10}},
			{StudentID: "s1", Scores: map[models.ComponentKind]float64{models.ComponentCAT1: 12}},
		},
	}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	require.Equal(t, 0, marks.upserts)
}

func TestRecordRejectsScoreOutsideAbsoluteRange(t *testing.T) {
	svc, marks, _, _ := markServiceFixture(models.SubmissionStatusDraft)

	_, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{{StudentID: "s1", Scores: map[models.ComponentKind]float64{models.ComponentCAT1: 120}}},
	}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrOutOfRange))
	require.Equal(t, 0, marks.upserts)
}

func TestRecordStoresScoreAboveComponentMaxAsInvalid(t *testing.T) {
	svc, marks, _, _ := markServiceFixture(models.SubmissionStatusDraft)

	scores := fullCATScores()
	scores[models.ComponentCAT1] = 45

	resp, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{
			{StudentID: "s1", Scores: map[models.ComponentKind]float64(scores)},
			{StudentID: "s2", Remark: models.RemarkAbsent},
		},
	}, lecturerClaims())
	require.NoError(t, err)
	require.Equal(t, 1, marks.upserts)
	require.False(t, resp.Validation.IsValid)
	require.NotEmpty(t, resp.Validation.Errors)
}

func TestRecordRefusedOutsideDraft(t *testing.T) {
	svc, _, _, _ := markServiceFixture(models.SubmissionStatusSubmitted)
	_, err := svc.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{{StudentID: "s1"}},
	}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrWrongState))

	svcTerminal, _, _, _ := markServiceFixture(models.SubmissionStatusApproved)
	_, err = svcTerminal.Record(context.Background(), "sub-1", dto.RecordMarksRequest{
		Marks: []dto.MarkEntry{{StudentID: "s1"}},
	}, lecturerClaims())
	require.True(t, appErrors.HasCode(err, appErrors.ErrAlreadyFinalized))
}
