package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
)

func TestBuildDatasetLaysOutComponents(t *testing.T) {
	svc := NewExportService()
	submission := &models.Submission{ID: "sub-1", Type: models.SubmissionTypeExam}
	marks := []models.StudentMark{
		{
			StudentID:          "s1",
			RegistrationNumber: "REG-001",
			Scores: models.ComponentScores{
				models.ComponentExam: 55,
				models.ComponentLab1: 8,
				models.ComponentLab2: 7,
				models.ComponentLab3: 9,
			},
			Total:   79,
			Average: 19.75,
			Grade:   "B+",
		},
		{
			StudentID:          "s2",
			RegistrationNumber: "REG-002",
			Remark:             models.RemarkAbsent,
			Grade:              models.FailingGrade,
		},
	}

	dataset := svc.BuildDataset(submission, marks)
	require.Equal(t, []string{
		"Registration Number", "Student ID",
		"exam (/70)", "lab1 (/10)", "lab2 (/10)", "lab3 (/10)",
		"Total", "Average", "Grade", "Remark",
	}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)
	require.Equal(t, "55.00", dataset.Rows[0]["exam (/70)"])
	require.Equal(t, "B+", dataset.Rows[0]["Grade"])
	require.Equal(t, models.RemarkAbsent, dataset.Rows[1]["Remark"])
	_, hasExam := dataset.Rows[1]["exam (/70)"]
	require.False(t, hasExam)
}

func TestRenderCSVRoundTrip(t *testing.T) {
	svc := NewExportService()
	submission := &models.Submission{ID: "sub-1", Type: models.SubmissionTypeCAT}
	marks := []models.StudentMark{{
		StudentID:          "s1",
		RegistrationNumber: "REG-001",
		Scores:             fullCATScores(),
		Total:              83,
		Grade:              "A",
	}}

	payload, err := svc.Render(models.MarkSheetFormatCSV, svc.BuildDataset(submission, marks), "CAT Mark Sheet")
	require.NoError(t, err)
	text := string(payload)
	require.True(t, strings.HasPrefix(text, "Registration Number,Student ID"))
	require.Contains(t, text, "REG-001")
	require.Contains(t, text, "83.00")
}

func TestRenderUnknownFormat(t *testing.T) {
	svc := NewExportService()
	_, err := svc.Render(models.MarkSheetFormat("xlsx"), svc.BuildDataset(&models.Submission{Type: models.SubmissionTypeCAT}, nil), "")
	require.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}
