package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-workflow-api/internal/models"
)

const assignmentColumns = `id, module_code, module_name, instructor_id, group_id, academic_year_id,
       semester_id, enrolled_students, active, created_at, updated_at`

// AssignmentRepository reads module assignments and their rosters.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID fetches a module assignment.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.ModuleAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM module_assignments WHERE id = $1`, assignmentColumns)
	var assignment models.ModuleAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// List returns assignments matching the filter, newest first.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.ModuleAssignment, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM module_assignments`, assignmentColumns))

	conditions := make([]string, 0, 3)
	if filter.InstructorID != "" {
		args = append(args, filter.InstructorID)
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)))
	}
	if filter.SemesterID != "" {
		args = append(args, filter.SemesterID)
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var assignments []models.ModuleAssignment
	if err := r.db.SelectContext(ctx, &assignments, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list module assignments: %w", err)
	}
	return assignments, nil
}

// ListRoster returns the enrolled students for a module assignment.
func (r *AssignmentRepository) ListRoster(ctx context.Context, assignmentID string) ([]models.RosterStudent, error) {
	const query = `SELECT student_id, registration_number, full_name
	FROM module_roster WHERE module_assignment_id = $1 ORDER BY registration_number ASC`
	var roster []models.RosterStudent
	if err := r.db.SelectContext(ctx, &roster, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list module roster: %w", err)
	}
	return roster, nil
}
