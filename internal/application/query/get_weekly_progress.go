package query

import (
	"context"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/progress"
)

// GetWeeklyProgressQuery asks for the weekly progress chart only.
type GetWeeklyProgressQuery struct {
	StudentID int64 `validate:"required,gt=0"`
	CourseID  int64 `validate:"required,gt=0"`

	// TotalWeeks overrides the configured chart length when set.
	TotalWeeks int `validate:"gte=0,lte=52"`
}

// Validate checks the query.
func (q *GetWeeklyProgressQuery) Validate() error {
	return validateStruct("GetWeeklyProgress", q)
}

// WeeklyProgressResult is the chart for one registration.
type WeeklyProgressResult struct {
	StudentID int64            `json:"student_id"`
	CourseID  int64            `json:"course_id"`
	Points    []progress.Point `json:"weekly_progress"`
}

// GetWeeklyProgressHandler handles GetWeeklyProgressQuery.
type GetWeeklyProgressHandler struct {
	directory engagement.DirectoryRepository
	analyzer  *Analyzer
	toggles   Toggles
}

// NewGetWeeklyProgressHandler creates a new handler.
func NewGetWeeklyProgressHandler(directory engagement.DirectoryRepository, analyzer *Analyzer, toggles Toggles) *GetWeeklyProgressHandler {
	if toggles == nil {
		toggles = allEnabled{}
	}
	return &GetWeeklyProgressHandler{directory: directory, analyzer: analyzer, toggles: toggles}
}

// Handle executes the query.
func (h *GetWeeklyProgressHandler) Handle(ctx context.Context, q GetWeeklyProgressQuery) (*WeeklyProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	st, course, err := resolve(ctx, h.directory, "GetWeeklyProgress", q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}

	total := q.TotalWeeks
	if total == 0 {
		total = h.analyzer.TotalWeeks()
	}
	gated := h.toggles.Enabled(config.FeatureWeeklyProgressGate, st.ID, course.ID)
	points, err := h.analyzer.WeeklyProgress(ctx, st.ID, course.ID, total, gated)
	if err != nil {
		return nil, analyticsError("GetWeeklyProgress", err)
	}

	return &WeeklyProgressResult{StudentID: st.ID, CourseID: course.ID, Points: points}, nil
}
