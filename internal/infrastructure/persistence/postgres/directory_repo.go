package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// DirectoryRepository implements engagement.DirectoryRepository and
// engagement.RosterRepository over users, courses and course_registrations.
type DirectoryRepository struct {
	db Querier
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db Querier) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

var (
	_ engagement.DirectoryRepository = (*DirectoryRepository)(nil)
	_ engagement.RosterRepository    = (*DirectoryRepository)(nil)
)

// StudentByID returns the student with the given user id.
// Users that are not students are reported as not found.
func (r *DirectoryRepository) StudentByID(ctx context.Context, id int64) (*engagement.Student, error) {
	query := `
		SELECT user_id, COALESCE(student_id, ''), first_name, last_name, email, gender
		FROM users
		WHERE user_id = $1 AND user_type = 'student'
	`

	var (
		s      engagement.Student
		gender *int16
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.StudentID, &s.FirstName, &s.LastName, &s.Email, &gender)
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	if gender != nil {
		g := engagement.Gender(*gender)
		s.Gender = &g
	}
	return &s, nil
}

// CourseByID returns the course with the given id.
func (r *DirectoryRepository) CourseByID(ctx context.Context, id int64) (*engagement.Course, error) {
	query := `
		SELECT course_id, course_code, course_title, year, term
		FROM courses
		WHERE course_id = $1
	`

	var c engagement.Course
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Code, &c.Title, &c.Year, &c.Term)
	if IsNoRows(err) {
		return nil, shared.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

// ActiveStudentIDs returns the students with an active registration in the course.
func (r *DirectoryRepository) ActiveStudentIDs(ctx context.Context, courseID int64) ([]int64, error) {
	query := `
		SELECT student_id
		FROM course_registrations
		WHERE course_id = $1 AND status = $2
		ORDER BY student_id
	`

	rows, err := r.db.Query(ctx, query, courseID, string(engagement.RegistrationActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roster: %w", err)
	}
	return ids, nil
}

// ActiveCourseIDs returns courses with at least one active registration.
func (r *DirectoryRepository) ActiveCourseIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT course_id
		FROM course_registrations
		WHERE status = $1
		ORDER BY course_id
	`

	rows, err := r.db.Query(ctx, query, string(engagement.RegistrationActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active courses: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan active courses: %w", err)
	}
	return ids, nil
}
