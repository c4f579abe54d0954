package engagement

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contracts over the LMS tables, implemented in infrastructure/persistence.
// Every record query takes a week filter; AllWeeks returns every week.
// ══════════════════════════════════════════════════════════════════════════════

// RecordRepository reads the four per-student record kinds and the course items
// they reference. Result order is not significant.
type RecordRepository interface {
	// Attendance returns the student's attendance marks in the course.
	Attendance(ctx context.Context, studentID, courseID int64, week int) ([]AttendanceRecord, error)

	// Submissions returns the student's assignment submissions.
	Submissions(ctx context.Context, studentID, courseID int64, week int) ([]Submission, error)

	// QuizScores returns the student's quiz scores.
	QuizScores(ctx context.Context, studentID, courseID int64, week int) ([]QuizScore, error)

	// LabParticipations returns the student's lab participation rows.
	LabParticipations(ctx context.Context, studentID, courseID int64, week int) ([]LabParticipation, error)

	// Items returns the assignments, quizzes and labs of the course.
	Items(ctx context.Context, courseID int64, week int) (CourseItems, error)
}

// CourseItems groups the assessed items of a course.
type CourseItems struct {
	Assignments []Item
	Quizzes     []Item
	Labs        []Item
}

// RosterRepository lists the cohort of a course.
type RosterRepository interface {
	// ActiveStudentIDs returns the ids of students with an active registration.
	ActiveStudentIDs(ctx context.Context, courseID int64) ([]int64, error)

	// ActiveCourseIDs returns courses that have at least one active registration.
	ActiveCourseIDs(ctx context.Context) ([]int64, error)
}

// DirectoryRepository resolves students and courses.
// Both lookups return shared.ErrStudentNotFound / shared.ErrCourseNotFound.
type DirectoryRepository interface {
	StudentByID(ctx context.Context, id int64) (*Student, error)
	CourseByID(ctx context.Context, id int64) (*Course, error)
}

// Fetch loads a Records bundle through repo.
func Fetch(ctx context.Context, repo RecordRepository, studentID, courseID int64, week int) (Records, error) {
	var (
		r   Records
		err error
	)
	if r.Attendance, err = repo.Attendance(ctx, studentID, courseID, week); err != nil {
		return Records{}, err
	}
	if r.Submissions, err = repo.Submissions(ctx, studentID, courseID, week); err != nil {
		return Records{}, err
	}
	if r.QuizScores, err = repo.QuizScores(ctx, studentID, courseID, week); err != nil {
		return Records{}, err
	}
	if r.Participations, err = repo.LabParticipations(ctx, studentID, courseID, week); err != nil {
		return Records{}, err
	}
	items, err := repo.Items(ctx, courseID, week)
	if err != nil {
		return Records{}, err
	}
	r.Assignments = items.Assignments
	r.Quizzes = items.Quizzes
	r.Labs = items.Labs
	return r, nil
}
