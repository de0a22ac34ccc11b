package service

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

// ValidationService recomputes a submission's validation snapshot from
// its marks and roster. Pure over its inputs: all persistence happens
// in the callers.
type ValidationService struct {
	logger *zap.Logger
}

// NewValidationService constructs the service.
func NewValidationService(logger *zap.Logger) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{logger: logger}
}

// ValidationResult pairs the snapshot with the completion percentage
// derived from the same pass.
type ValidationResult struct {
	Info                 models.ValidationInfo
	CompletionPercentage float64
}

// Validate checks the marks of one submission against its roster and
// required component set. A student is complete when marked absent or
// when every required component carries a score within its range; a
// score above its component maximum is stored but the mark does not
// count as complete and the submission becomes invalid.
func (s *ValidationService) Validate(submissionType models.SubmissionType, roster []models.RosterStudent, marks []models.StudentMark) ValidationResult {
	specs := models.RequiredComponents(submissionType)
	byStudent := make(map[string]*models.StudentMark, len(marks))
	for i := range marks {
		byStudent[marks[i].StudentID] = &marks[i]
	}
	onRoster := make(map[string]bool, len(roster))

	info := models.ValidationInfo{}
	complete := 0

	for _, student := range roster {
		onRoster[student.StudentID] = true
		label := student.RegistrationNumber
		if label == "" {
			label = student.StudentID
		}

		mark, ok := byStudent[student.StudentID]
		if !ok {
			info.MissingData = append(info.MissingData, fmt.Sprintf("%s: no marks recorded", label))
			continue
		}
		if mark.Absent() {
			complete++
			continue
		}

		missing := 0
		outOfRange := false
		for _, spec := range specs {
			score, present := mark.Scores[spec.Kind]
			if !present {
				info.MissingData = append(info.MissingData, fmt.Sprintf("%s: missing %s", label, spec.Kind))
				missing++
				continue
			}
			if score > spec.Max {
				info.Errors = append(info.Errors, fmt.Sprintf("%s: %s score %.2f exceeds maximum %.0f", label, spec.Kind, score, spec.Max))
				outOfRange = true
			}
		}
		if missing == 0 && !outOfRange {
			complete++
			if mark.Total == 0 {
				info.Warnings = append(info.Warnings, fmt.Sprintf("%s: all component scores are zero", label))
			}
		}
	}

	for _, mark := range marks {
		if !onRoster[mark.StudentID] {
			info.Errors = append(info.Errors, fmt.Sprintf("%s: not on the module roster", mark.StudentID))
		}
	}

	total := len(roster)
	completion := 0.0
	// Consistency is the complete fraction on a 0..1 scale.
	consistency := 0.0
	if total > 0 {
		completion = round2(float64(complete) / float64(total) * 100)
		consistency = round2(float64(complete) / float64(total))
	}
	info.IsComplete = total > 0 && complete == total
	info.IsValid = info.IsComplete && len(info.Errors) == 0
	info.ConsistencyScore = consistency
	now := time.Now().UTC()
	info.LastValidatedAt = &now

	return ValidationResult{Info: info, CompletionPercentage: completion}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
