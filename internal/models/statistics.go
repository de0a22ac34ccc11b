package models

import "time"

// SubmissionStatistics is a derived read model over a submission's
// marks. Cached only; the mark rows remain the source of truth.
type SubmissionStatistics struct {
	SubmissionID                string         `json:"submission_id"`
	TotalStudents               int            `json:"total_students"`
	StudentsWithCompleteMarks   int            `json:"students_with_complete_marks"`
	StudentsWithIncompleteMarks int            `json:"students_with_incomplete_marks"`
	AbsentStudents              int            `json:"absent_students"`
	CompletionPercentage        float64        `json:"completion_percentage"`
	AverageMarks                float64        `json:"average_marks"`
	PassRate                    float64        `json:"pass_rate"`
	GradeDistribution           map[string]int `json:"grade_distribution"`
	GeneratedAt                 time.Time      `json:"generated_at"`
}
