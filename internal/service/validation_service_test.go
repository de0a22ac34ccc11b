package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

func catMark(studentID, reg string, scores models.ComponentScores) models.StudentMark {
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return models.StudentMark{
		StudentID:          studentID,
		RegistrationNumber: reg,
		Scores:             scores,
		Total:              total,
	}
}

func fullCATScores() models.ComponentScores {
	return models.ComponentScores{
		models.ComponentCAT1:        25,
		models.ComponentCAT2:        28,
		models.ComponentQuiz1:       8,
		models.ComponentQuiz2:       9,
		models.ComponentAssignment1: 7,
		models.ComponentAssignment2: 6,
	}
}

func TestValidateCompleteRoster(t *testing.T) {
	svc := NewValidationService(nil)
	roster := []models.RosterStudent{
		{StudentID: "s1", RegistrationNumber: "REG-001"},
		{StudentID: "s2", RegistrationNumber: "REG-002"},
	}
	marks := []models.StudentMark{
		catMark("s1", "REG-001", fullCATScores()),
		catMark("s2", "REG-002", fullCATScores()),
	}

	result := svc.Validate(models.SubmissionTypeCAT, roster, marks)
	require.True(t, result.Info.IsComplete)
	require.True(t, result.Info.IsValid)
	require.Empty(t, result.Info.Errors)
	require.Empty(t, result.Info.MissingData)
	require.Equal(t, 100.0, result.CompletionPercentage)
	require.Equal(t, 1.0, result.Info.ConsistencyScore)
	require.NotNil(t, result.Info.LastValidatedAt)
}

func TestValidateMissingStudentAndComponents(t *testing.T) {
	svc := NewValidationService(nil)
	roster := []models.RosterStudent{
		{StudentID: "s1", RegistrationNumber: "REG-001"},
		{StudentID: "s2", RegistrationNumber: "REG-002"},
	}
	partial := fullCATScores()
	delete(partial, models.ComponentQuiz2)
	marks := []models.StudentMark{catMark("s1", "REG-001", partial)}

	result := svc.Validate(models.SubmissionTypeCAT, roster, marks)
	require.False(t, result.Info.IsComplete)
	require.False(t, result.Info.IsValid)
	require.Contains(t, result.Info.MissingData, "REG-001: missing quiz2")
	require.Contains(t, result.Info.MissingData, "REG-002: no marks recorded")
	require.Equal(t, 0.0, result.CompletionPercentage)
}

func TestValidateScoreAboveComponentMax(t *testing.T) {
	svc := NewValidationService(nil)
	roster := []models.RosterStudent{{StudentID: "s1", RegistrationNumber: "REG-001"}}
	scores := fullCATScores()
	scores[models.ComponentCAT1] = 35
	marks := []models.StudentMark{catMark("s1", "REG-001", scores)}

	result := svc.Validate(models.SubmissionTypeCAT, roster, marks)
	require.False(t, result.Info.IsComplete)
	require.False(t, result.Info.IsValid)
	require.Len(t, result.Info.Errors, 1)
	require.Contains(t, result.Info.Errors[0], "cat1")
	require.Equal(t, 0.0, result.CompletionPercentage)
	require.Equal(t, 0.0, result.Info.ConsistencyScore)
}

func TestValidateAbsentStudentIsComplete(t *testing.T) {
	svc := NewValidationService(nil)
	roster := []models.RosterStudent{{StudentID: "s1", RegistrationNumber: "REG-001"}}
	marks := []models.StudentMark{{
		StudentID:          "s1",
		RegistrationNumber: "REG-001",
		Remark:             models.RemarkAbsent,
		Grade:              models.FailingGrade,
	}}

	result := svc.Validate(models.SubmissionTypeExam, roster, marks)
	require.True(t, result.Info.IsComplete)
	require.True(t, result.Info.IsValid)
	require.Equal(t, 100.0, result.CompletionPercentage)
}

func TestValidateConsistencyScoreIsFraction(t *testing.T) {
	svc := NewValidationService(nil)
	roster := []models.RosterStudent{
		{StudentID: "s1", RegistrationNumber: "REG-001"},
		{StudentID: "s2", RegistrationNumber: "REG-002"},
	}
	marks := []models.StudentMark{catMark("s1", "REG-001", fullCATScores())}

	result := svc.Validate(models.SubmissionTypeCAT, roster, marks)
	require.Equal(t, 0.5, result.Info.ConsistencyScore)
	require.Equal(t, 50.0, result.CompletionPercentage)
}

func TestValidateEmptyRosterNeverComplete(t *testing.T) {
	svc := NewValidationService(nil)
	result := svc.Validate(models.SubmissionTypeCAT, nil, nil)
	require.False(t, result.Info.IsComplete)
	require.False(t, result.Info.IsValid)
	require.Equal(t, 0.0, result.CompletionPercentage)
}
