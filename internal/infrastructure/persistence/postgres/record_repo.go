package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RecordRepository implements engagement.RecordRepository for PostgreSQL.
// Week filtering uses ($n = 0 OR week_number = $n) so engagement.AllWeeks
// disables it inside the same statement.
type RecordRepository struct {
	db Querier
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db Querier) *RecordRepository {
	return &RecordRepository{db: db}
}

var _ engagement.RecordRepository = (*RecordRepository)(nil)

// Attendance returns the student's attendance marks in the course.
func (r *RecordRepository) Attendance(ctx context.Context, studentID, courseID int64, week int) ([]engagement.AttendanceRecord, error) {
	query := `
		SELECT student_id, course_id, date, week_number, section, status
		FROM attendance
		WHERE student_id = $1 AND course_id = $2
		  AND ($3 = 0 OR week_number = $3)
	`

	rows, err := r.db.Query(ctx, query, studentID, courseID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (engagement.AttendanceRecord, error) {
		var (
			a               engagement.AttendanceRecord
			section, status string
		)
		err := row.Scan(&a.StudentID, &a.CourseID, &a.Date, &a.WeekNumber, &section, &status)
		a.Section = engagement.Section(section)
		a.Status = engagement.AttendanceStatus(strings.ToLower(status))
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan attendance: %w", err)
	}
	return out, nil
}

// Submissions returns the student's submissions for assignments in the course week.
func (r *RecordRepository) Submissions(ctx context.Context, studentID, courseID int64, week int) ([]engagement.Submission, error) {
	query := `
		SELECT s.assignment_id, s.student_id, s.score, s.status
		FROM assignment_submissions s
		JOIN assignments a ON a.assignment_id = s.assignment_id
		WHERE s.student_id = $1 AND a.course_id = $2
		  AND ($3 = 0 OR a.week_number = $3)
	`

	rows, err := r.db.Query(ctx, query, studentID, courseID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (engagement.Submission, error) {
		var (
			s      engagement.Submission
			status string
		)
		err := row.Scan(&s.AssignmentID, &s.StudentID, &s.Score, &status)
		s.Status = ParseSubmissionStatus(status)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan submissions: %w", err)
	}
	return out, nil
}

// QuizScores returns the student's quiz scores in the course week.
func (r *RecordRepository) QuizScores(ctx context.Context, studentID, courseID int64, week int) ([]engagement.QuizScore, error) {
	query := `
		SELECT qs.quiz_id, qs.student_id, qs.score
		FROM quiz_scores qs
		JOIN quizzes q ON q.quiz_id = qs.quiz_id
		WHERE qs.student_id = $1 AND q.course_id = $2
		  AND ($3 = 0 OR q.week_number = $3)
	`

	rows, err := r.db.Query(ctx, query, studentID, courseID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to query quiz scores: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (engagement.QuizScore, error) {
		var q engagement.QuizScore
		err := row.Scan(&q.QuizID, &q.StudentID, &q.Score)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan quiz scores: %w", err)
	}
	return out, nil
}

// LabParticipations returns the student's lab participation rows.
func (r *RecordRepository) LabParticipations(ctx context.Context, studentID, courseID int64, week int) ([]engagement.LabParticipation, error) {
	query := `
		SELECT p.lab_id, p.student_id, p.score, p.max_score, p.attendance
		FROM lab_participation p
		JOIN lab_activities l ON l.lab_id = p.lab_id
		WHERE p.student_id = $1 AND l.course_id = $2
		  AND ($3 = 0 OR l.week_number = $3)
	`

	rows, err := r.db.Query(ctx, query, studentID, courseID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to query lab participation: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (engagement.LabParticipation, error) {
		var p engagement.LabParticipation
		err := row.Scan(&p.LabID, &p.StudentID, &p.Score, &p.MaxScore, &p.Attended)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan lab participation: %w", err)
	}
	return out, nil
}

// itemQueries select (id, course_id, title, week_number, max_score) from each item table.
var itemQueries = map[string]string{
	"assignments": `
		SELECT assignment_id, course_id, title, week_number, max_score
		FROM assignments
		WHERE course_id = $1 AND ($2 = 0 OR week_number = $2)`,
	"quizzes": `
		SELECT quiz_id, course_id, title, week_number, max_score
		FROM quizzes
		WHERE course_id = $1 AND ($2 = 0 OR week_number = $2)`,
	"labs": `
		SELECT lab_id, course_id, title, week_number, max_score
		FROM lab_activities
		WHERE course_id = $1 AND ($2 = 0 OR week_number = $2)`,
}

// Items returns the assignments, quizzes and labs of the course in a single round trip.
func (r *RecordRepository) Items(ctx context.Context, courseID int64, week int) (engagement.CourseItems, error) {
	var items engagement.CourseItems

	batch := &pgx.Batch{}
	targets := []struct {
		kind string
		dst  *[]engagement.Item
	}{
		{"assignments", &items.Assignments},
		{"quizzes", &items.Quizzes},
		{"labs", &items.Labs},
	}
	for _, t := range targets {
		dst, kind := t.dst, t.kind
		batch.Queue(itemQueries[kind], courseID, week).Query(func(rows pgx.Rows) error {
			list, err := pgx.CollectRows(rows, scanItem)
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", kind, err)
			}
			*dst = list
			return nil
		})
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return engagement.CourseItems{}, fmt.Errorf("failed to query course items: %w", err)
	}
	return items, nil
}

func scanItem(row pgx.CollectableRow) (engagement.Item, error) {
	var it engagement.Item
	err := row.Scan(&it.ID, &it.CourseID, &it.Title, &it.WeekNumber, &it.MaxScore)
	return it, err
}

// ParseSubmissionStatus normalizes the status spellings found in LMS data
// ("late-submitted", "Not Submitted") to engagement.SubmissionStatus.
// Unknown values are treated as submitted.
func ParseSubmissionStatus(raw string) engagement.SubmissionStatus {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)

	switch s := engagement.SubmissionStatus(norm); s {
	case engagement.SubmissionSubmitted,
		engagement.SubmissionLateSubmitted,
		engagement.SubmissionNotSubmitted,
		engagement.SubmissionGraded,
		engagement.SubmissionMissing:
		return s
	}
	return engagement.SubmissionSubmitted
}
