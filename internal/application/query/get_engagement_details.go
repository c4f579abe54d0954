package query

import (
	"context"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/progress"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// GetEngagementDetailsQuery asks for the per-record engagement breakdown.
type GetEngagementDetailsQuery struct {
	StudentID  int64 `validate:"required,gt=0"`
	CourseID   int64 `validate:"required,gt=0"`
	WeekNumber int   `validate:"gte=0,lte=52"`
}

// Validate checks the query.
func (q *GetEngagementDetailsQuery) Validate() error {
	return validateStruct("GetEngagementDetails", q)
}

// EngagementDetailsResult is the breakdown for one registration.
type EngagementDetailsResult struct {
	Student    StudentDTO         `json:"student"`
	Course     CourseDTO          `json:"course"`
	WeekNumber int                `json:"week_number,omitempty"`
	Details    engagement.Details `json:"details"`

	// WeekScore and ClassAverage are only set for a single week.
	WeekScore    *float64 `json:"week_score,omitempty"`
	ClassAverage *float64 `json:"class_average,omitempty"`
}

// GetEngagementDetailsHandler handles GetEngagementDetailsQuery.
type GetEngagementDetailsHandler struct {
	directory engagement.DirectoryRepository
	analyzer  *Analyzer
}

// NewGetEngagementDetailsHandler creates a new handler.
func NewGetEngagementDetailsHandler(directory engagement.DirectoryRepository, analyzer *Analyzer) *GetEngagementDetailsHandler {
	return &GetEngagementDetailsHandler{directory: directory, analyzer: analyzer}
}

// Handle executes the query.
func (h *GetEngagementDetailsHandler) Handle(ctx context.Context, q GetEngagementDetailsQuery) (*EngagementDetailsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	st, course, err := resolve(ctx, h.directory, "GetEngagementDetails", q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}

	records, _, err := h.analyzer.Engagement(ctx, st.ID, course.ID, q.WeekNumber)
	if err != nil {
		return nil, analyticsError("GetEngagementDetails", err)
	}

	result := &EngagementDetailsResult{
		Student:    newStudentDTO(st),
		Course:     newCourseDTO(course),
		WeekNumber: q.WeekNumber,
		Details:    engagement.Breakdown(records),
	}
	if q.WeekNumber == engagement.AllWeeks {
		return result, nil
	}

	result.WeekScore = progress.WeekScore(records.ForWeek(q.WeekNumber))
	cohort, err := h.analyzer.roster.ActiveStudentIDs(ctx, course.ID)
	if err != nil {
		return nil, analyticsError("GetEngagementDetails", err)
	}
	avg, err := h.analyzer.CohortWeekAverage(ctx, course.ID, q.WeekNumber, cohort)
	if err != nil {
		return nil, analyticsError("GetEngagementDetails", err)
	}
	if avg != nil {
		v := shared.Round1(*avg)
		result.ClassAverage = &v
	}
	return result, nil
}
