package query

import (
	"context"
	"time"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/feedback"
	"github.com/learnsight/engagement-analytics/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DASHBOARD QUERY
// Assembles the student dashboard: engagement tracker, weekly progress chart,
// risk prediction and personalised feedback, computed fresh per request.
// ══════════════════════════════════════════════════════════════════════════════

// GetDashboardQuery identifies the dashboard to build.
type GetDashboardQuery struct {
	StudentID int64 `validate:"required,gt=0"`
	CourseID  int64 `validate:"required,gt=0"`

	// WeekNumber limits engagement to one week; 0 means the whole course.
	WeekNumber int `validate:"gte=0,lte=52"`
}

// Validate checks the query.
func (q *GetDashboardQuery) Validate() error {
	return validateStruct("GetDashboard", q)
}

// DashboardResult is the full dashboard payload.
type DashboardResult struct {
	Student              StudentDTO          `json:"student"`
	Course               CourseDTO           `json:"course"`
	WeekNumber           int                 `json:"week_number,omitempty"`
	RiskPrediction       RiskDTO             `json:"risk_prediction"`
	WeeklyProgress       []progress.Point    `json:"weekly_progress"`
	EngagementTracker    engagement.Snapshot `json:"engagement_tracker"`
	PersonalizedFeedback feedback.Message    `json:"personalized_feedback"`
	GeneratedAt          time.Time           `json:"generated_at"`
}

// GetDashboardHandler handles GetDashboardQuery.
type GetDashboardHandler struct {
	directory engagement.DirectoryRepository
	analyzer  *Analyzer
	assessor  *RiskAssessor
	toggles   Toggles
}

// NewGetDashboardHandler creates a new GetDashboardHandler.
func NewGetDashboardHandler(
	directory engagement.DirectoryRepository,
	analyzer *Analyzer,
	assessor *RiskAssessor,
	toggles Toggles,
) *GetDashboardHandler {
	if toggles == nil {
		toggles = allEnabled{}
	}
	return &GetDashboardHandler{
		directory: directory,
		analyzer:  analyzer,
		assessor:  assessor,
		toggles:   toggles,
	}
}

// Handle executes the query.
func (h *GetDashboardHandler) Handle(ctx context.Context, q GetDashboardQuery) (*DashboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	st, course, err := resolve(ctx, h.directory, "GetDashboard", q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}

	records, snap, err := h.analyzer.Engagement(ctx, st.ID, course.ID, q.WeekNumber)
	if err != nil {
		return nil, analyticsError("GetDashboard", err)
	}

	gated := h.toggles.Enabled(config.FeatureWeeklyProgressGate, st.ID, course.ID)
	points, err := h.analyzer.WeeklyProgress(ctx, st.ID, course.ID, h.analyzer.TotalWeeks(), gated)
	if err != nil {
		return nil, analyticsError("GetDashboard", err)
	}

	assessment := h.assessor.Assess(ctx, st, course.ID, snap)

	message := feedback.Detailed(feedback.Input{
		Snapshot:   snap,
		Level:      assessment.Level,
		MissedLabs: records.MissedLabs(),
	}, feedback.DetailedThresholds)

	return &DashboardResult{
		Student:              newStudentDTO(st),
		Course:               newCourseDTO(course),
		WeekNumber:           q.WeekNumber,
		RiskPrediction:       newRiskDTO(assessment),
		WeeklyProgress:       points,
		EngagementTracker:    snap,
		PersonalizedFeedback: message,
		GeneratedAt:          time.Now().UTC(),
	}, nil
}
