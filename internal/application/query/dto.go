package query

import (
	"context"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// StudentDTO is the student block of analytics responses.
type StudentDTO struct {
	ID        int64  `json:"id"`
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

// CourseDTO is the course block of analytics responses.
type CourseDTO struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
	Term  string `json:"term,omitempty"`
}

// RiskDTO is the serialised risk assessment.
type RiskDTO struct {
	RiskScore            float64 `json:"risk_score"`
	RiskLevel            string  `json:"risk_level"`
	RiskColor            string  `json:"risk_color"`
	Feedback             string  `json:"feedback"`
	Summary              string  `json:"summary"`
	UsedStatisticalModel bool    `json:"used_statistical_model"`
}

func newStudentDTO(s *engagement.Student) StudentDTO {
	return StudentDTO{ID: s.ID, StudentID: s.StudentID, Name: s.FullName(), Email: s.Email}
}

func newCourseDTO(c *engagement.Course) CourseDTO {
	return CourseDTO{ID: c.ID, Code: c.Code, Title: c.Title, Year: c.Year, Term: c.Term}
}

func newRiskDTO(a risk.Assessment) RiskDTO {
	return RiskDTO{
		RiskScore:            shared.Round2(a.Score),
		RiskLevel:            string(a.Level),
		RiskColor:            string(a.Color),
		Feedback:             a.Feedback,
		Summary:              a.Summary(),
		UsedStatisticalModel: a.UsedModel,
	}
}

// Toggles is the feature flag lookup the handlers need.
type Toggles interface {
	Enabled(feature string, studentID, courseID int64) bool
}

type allEnabled struct{}

func (allEnabled) Enabled(string, int64, int64) bool { return true }

// resolve looks the student and course up, mapping misses to ErrNotFound.
func resolve(ctx context.Context, dir engagement.DirectoryRepository, op string, studentID, courseID int64) (*engagement.Student, *engagement.Course, error) {
	st, err := dir.StudentByID(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil, shared.WrapError("query", op, shared.ErrNotFound, "student not found", err)
		}
		return nil, nil, shared.WrapError("query", op, shared.ErrServiceUnavailable, "failed to load student", err)
	}
	course, err := dir.CourseByID(ctx, courseID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil, shared.WrapError("query", op, shared.ErrNotFound, "course not found", err)
		}
		return nil, nil, shared.WrapError("query", op, shared.ErrServiceUnavailable, "failed to load course", err)
	}
	return st, course, nil
}

func analyticsError(op string, err error) error {
	return shared.WrapError("query", op, shared.ErrServiceUnavailable, "failed to compute analytics", err)
}
