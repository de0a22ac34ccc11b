package models

import "time"

// ModuleAssignment identifies a lecturer-module-group-semester tuple.
// Owned by the academic-records collaborator; the workflow core only
// references it and never mutates anything beyond enrollment counts.
type ModuleAssignment struct {
	ID               string    `db:"id" json:"id"`
	ModuleCode       string    `db:"module_code" json:"module_code"`
	ModuleName       string    `db:"module_name" json:"module_name"`
	InstructorID     string    `db:"instructor_id" json:"instructor_id"`
	GroupID          string    `db:"group_id" json:"group_id"`
	AcademicYearID   string    `db:"academic_year_id" json:"academic_year_id"`
	SemesterID       string    `db:"semester_id" json:"semester_id"`
	EnrolledStudents int       `db:"enrolled_students" json:"enrolled_students"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// RosterStudent is one enrolled student of a module assignment.
type RosterStudent struct {
	StudentID          string `db:"student_id" json:"student_id"`
	RegistrationNumber string `db:"registration_number" json:"registration_number"`
	FullName           string `db:"full_name" json:"full_name"`
}

// AssignmentFilter constrains module assignment listings.
type AssignmentFilter struct {
	InstructorID string
	SemesterID   string
	Active       *bool
	Page         int
	PageSize     int
}
