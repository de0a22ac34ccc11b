package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionType distinguishes the two assessment tracks of a module.
type SubmissionType string

const (
	SubmissionTypeCAT  SubmissionType = "CAT"
	SubmissionTypeExam SubmissionType = "EXAM"
)

// Valid reports whether the type is one of the supported tracks.
func (t SubmissionType) Valid() bool {
	return t == SubmissionTypeCAT || t == SubmissionTypeExam
}

// SubmissionStatus captures the workflow state machine states.
type SubmissionStatus string

const (
	SubmissionStatusDraft     SubmissionStatus = "DRAFT"
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusApproved  SubmissionStatus = "APPROVED"
	SubmissionStatusRejected  SubmissionStatus = "REJECTED"
)

// Terminal reports whether no further transitions are allowed.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusApproved || s == SubmissionStatusRejected
}

// Rank orders non-rejected states by workflow progress. Used to pick
// the more advanced track when deriving the overall module status.
func (s SubmissionStatus) Rank() int {
	switch s {
	case SubmissionStatusDraft:
		return 0
	case SubmissionStatusSubmitted:
		return 1
	case SubmissionStatusApproved:
		return 2
	default:
		return -1
	}
}

// ProcessingLevel identifies which role a workflow step requires.
type ProcessingLevel string

const (
	LevelLecturer ProcessingLevel = "LECTURER"
	LevelHOD      ProcessingLevel = "HOD"
)

// StepStatus captures the lifecycle of one workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusRejected  StepStatus = "REJECTED"
)

// WorkflowStep is one stage in a submission's approval path. Steps are
// appended at creation and never edited once COMPLETED or REJECTED.
type WorkflowStep struct {
	ID                  string          `db:"id" json:"id"`
	SubmissionID        string          `db:"submission_id" json:"submission_id"`
	Name                string          `db:"name" json:"name"`
	Level               ProcessingLevel `db:"level" json:"level"`
	OfficerID           *string         `db:"officer_id" json:"officer_id,omitempty"`
	OfficerName         *string         `db:"officer_name" json:"officer_name,omitempty"`
	Status              StepStatus      `db:"status" json:"status"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	Comments            *string         `db:"comments" json:"comments,omitempty"`
	StepOrder           int             `db:"step_order" json:"step_order"`
	Required            bool            `db:"required" json:"required"`
	ProcessingTimeHours *float64        `db:"processing_time_hours" json:"processing_time_hours,omitempty"`
}

// StepTemplateEntry seeds a workflow step at submission creation.
type StepTemplateEntry struct {
	Name     string
	Level    ProcessingLevel
	Required bool
}

// StepTemplate returns the ordered step layout for a submission type.
// Both tracks currently share the same two-stage path.
func StepTemplate(t SubmissionType) []StepTemplateEntry {
	switch t {
	case SubmissionTypeCAT, SubmissionTypeExam:
		return []StepTemplateEntry{
			{Name: "Lecturer Entry", Level: LevelLecturer, Required: true},
			{Name: "HOD Review", Level: LevelHOD, Required: true},
		}
	default:
		return nil
	}
}

// ValidationInfo summarises completeness and consistency of a
// submission's marks. Persisted as JSONB alongside the submission.
type ValidationInfo struct {
	IsValid          bool       `json:"is_valid"`
	IsComplete       bool       `json:"is_complete"`
	Errors           []string   `json:"errors,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	MissingData      []string   `json:"missing_data,omitempty"`
	ConsistencyScore float64    `json:"consistency_score"`
	LastValidatedAt  *time.Time `json:"last_validated_at,omitempty"`
}

// Value marshals validation info for persistence.
func (v ValidationInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal validation info: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the struct.
func (v *ValidationInfo) Scan(value interface{}) error {
	return scanJSON(value, v, "ValidationInfo")
}

// MarkSheetInfo records the latest generated mark sheet artifact. The
// artifact itself is opaque; only the handle and size are tracked.
type MarkSheetInfo struct {
	JobID       string     `json:"job_id,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Format      string     `json:"format,omitempty"`
	SizeBytes   int64      `json:"size_bytes,omitempty"`
	GeneratedAt *time.Time `json:"generated_at,omitempty"`
}

// Value marshals mark sheet info for persistence.
func (m MarkSheetInfo) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal mark sheet info: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB payload into the struct.
func (m *MarkSheetInfo) Scan(value interface{}) error {
	return scanJSON(value, m, "MarkSheetInfo")
}

// Submission tracks one assessment track of a module assignment from
// creation through approval. Terminal rows are retained for audit.
type Submission struct {
	ID                   string           `db:"id" json:"id"`
	ModuleAssignmentID   string           `db:"module_assignment_id" json:"module_assignment_id"`
	Type                 SubmissionType   `db:"type" json:"type"`
	Status               SubmissionStatus `db:"status" json:"status"`
	Deadline             time.Time        `db:"deadline" json:"deadline"`
	SubmittedAt          *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt          *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CompletionPercentage float64          `db:"completion_percentage" json:"completion_percentage"`
	Validation           ValidationInfo   `db:"validation" json:"validation"`
	MarkSheet            MarkSheetInfo    `db:"mark_sheet" json:"mark_sheet"`
	CurrentStepOrder     int              `db:"current_step_order" json:"current_step_order"`
	Overdue              bool             `db:"overdue" json:"overdue"`
	Version              int64            `db:"version" json:"version"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`

	Steps []WorkflowStep `db:"-" json:"steps,omitempty"`
}

// CurrentStep returns the step matching CurrentStepOrder, or nil.
func (s *Submission) CurrentStep() *WorkflowStep {
	for i := range s.Steps {
		if s.Steps[i].StepOrder == s.CurrentStepOrder {
			return &s.Steps[i]
		}
	}
	return nil
}

// FinalRequiredStepOrder returns the order of the last required step.
func (s *Submission) FinalRequiredStepOrder() int {
	order := 0
	for _, step := range s.Steps {
		if step.Required && step.StepOrder > order {
			order = step.StepOrder
		}
	}
	return order
}

// DeadlineStatus describes a submission's position relative to its
// deadline. DaysUntilDeadline keeps the raw signed value for sorting;
// DisplayDays clamps at zero for user-facing summaries.
type DeadlineStatus struct {
	DaysUntilDeadline int  `json:"days_until_deadline"`
	DisplayDays       int  `json:"display_days"`
	IsOverdue         bool `json:"is_overdue"`
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
