package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ComponentKind names a scored assessment component.
type ComponentKind string

const (
	ComponentCAT1        ComponentKind = "cat1"
	ComponentCAT2        ComponentKind = "cat2"
	ComponentQuiz1       ComponentKind = "quiz1"
	ComponentQuiz2       ComponentKind = "quiz2"
	ComponentAssignment1 ComponentKind = "assignment1"
	ComponentAssignment2 ComponentKind = "assignment2"
	ComponentExam        ComponentKind = "exam"
	ComponentLab1        ComponentKind = "lab1"
	ComponentLab2        ComponentKind = "lab2"
	ComponentLab3        ComponentKind = "lab3"
)

// AbsoluteMaxScore bounds any single component score. Payloads outside
// this window are rejected outright rather than stored as invalid.
const AbsoluteMaxScore = 100.0

// ComponentSpec pairs a component with its maximum attainable score.
type ComponentSpec struct {
	Kind ComponentKind `json:"kind"`
	Max  float64       `json:"max"`
}

// RequiredComponents returns the component set a submission type must
// carry for every student before it can be submitted.
func RequiredComponents(t SubmissionType) []ComponentSpec {
	switch t {
	case SubmissionTypeCAT:
		return []ComponentSpec{
			{Kind: ComponentCAT1, Max: 30},
			{Kind: ComponentCAT2, Max: 30},
			{Kind: ComponentQuiz1, Max: 10},
			{Kind: ComponentQuiz2, Max: 10},
			{Kind: ComponentAssignment1, Max: 10},
			{Kind: ComponentAssignment2, Max: 10},
		}
	case SubmissionTypeExam:
		return []ComponentSpec{
			{Kind: ComponentExam, Max: 70},
			{Kind: ComponentLab1, Max: 10},
			{Kind: ComponentLab2, Max: 10},
			{Kind: ComponentLab3, Max: 10},
		}
	default:
		return nil
	}
}

// ComponentScores stores per-component values as JSONB.
type ComponentScores map[ComponentKind]float64

// Value marshals scores for persistence.
func (s ComponentScores) Value() (driver.Value, error) {
	if s == nil {
		s = ComponentScores{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal component scores: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the map.
func (s *ComponentScores) Scan(value interface{}) error {
	return scanJSON(value, s, "ComponentScores")
}

// RemarkAbsent marks a student who did not sit the assessment. Absent
// marks are complete by definition and excluded from numeric checks.
const RemarkAbsent = "absent"

// FailingGrade is the sole failing label used by the pass rate.
const FailingGrade = "F"

// GradeAbsent labels absent students in grade breakdowns. It is not a
// failing grade and never feeds the pass rate.
const GradeAbsent = "ABSENT"

// StudentMark is one student's row within a submission. Total, average
// and grade are derived on write and never accepted from callers.
type StudentMark struct {
	ID                 string          `db:"id" json:"id"`
	SubmissionID       string          `db:"submission_id" json:"submission_id"`
	StudentID          string          `db:"student_id" json:"student_id"`
	RegistrationNumber string          `db:"registration_number" json:"registration_number"`
	Scores             ComponentScores `db:"scores" json:"scores"`
	Average            float64         `db:"average" json:"average"`
	Total              float64         `db:"total" json:"total"`
	Grade              string          `db:"grade" json:"grade"`
	Remark             string          `db:"remark" json:"remark,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Absent reports whether the student was marked absent.
func (m StudentMark) Absent() bool {
	return m.Remark == RemarkAbsent
}

// GradeFor maps a total mark to its letter grade. Grade boundaries are
// owned by the academic-records collaborator; this is its default scale.
func GradeFor(total float64) string {
	switch {
	case total >= 80:
		return "A"
	case total >= 70:
		return "B+"
	case total >= 60:
		return "B"
	case total >= 50:
		return "C"
	case total >= 40:
		return "D"
	default:
		return FailingGrade
	}
}
