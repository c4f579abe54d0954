package query

import (
	"context"
	"time"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
)

// ══════════════════════════════════════════════════════════════════════════════
// RISK ASSESSOR
// Chooses between the model-backed and formula strategies per student.
// ══════════════════════════════════════════════════════════════════════════════

// RiskAssessor wraps the two estimators behind the risk model feature flag.
type RiskAssessor struct {
	formula risk.Estimator
	model   risk.Estimator
	toggles Toggles
}

// NewRiskAssessor creates a RiskAssessor. model may be nil; toggles may be nil
// to enable every feature.
func NewRiskAssessor(formula, model risk.Estimator, toggles Toggles) *RiskAssessor {
	if toggles == nil {
		toggles = allEnabled{}
	}
	return &RiskAssessor{formula: formula, model: model, toggles: toggles}
}

// Assess estimates risk for a resolved student in a course.
func (r *RiskAssessor) Assess(ctx context.Context, st *engagement.Student, courseID int64, snap engagement.Snapshot) risk.Assessment {
	in := risk.Input{
		Engagement: snap,
		Gender:     st.ModelGender(),
		StudentID:  st.ID,
		CourseID:   courseID,
	}
	if r.model != nil && r.toggles.Enabled(config.FeatureRiskModel, st.ID, courseID) {
		return r.model.Estimate(ctx, in)
	}
	return r.formula.Estimate(ctx, in)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET RISK QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetRiskQuery asks for the risk of one registration.
type GetRiskQuery struct {
	StudentID  int64 `validate:"required,gt=0"`
	CourseID   int64 `validate:"required,gt=0"`
	WeekNumber int   `validate:"gte=0,lte=52"`
}

// Validate checks the query.
func (q *GetRiskQuery) Validate() error {
	return validateStruct("GetRisk", q)
}

// RiskResult is the risk of one registration with the snapshot it came from.
type RiskResult struct {
	StudentID   int64               `json:"student_id"`
	CourseID    int64               `json:"course_id"`
	Engagement  engagement.Snapshot `json:"engagement"`
	Assessment  risk.Assessment     `json:"assessment"`
	Risk        RiskDTO             `json:"risk"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// GetRiskHandler computes the risk for one registration.
type GetRiskHandler struct {
	directory engagement.DirectoryRepository
	analyzer  *Analyzer
	assessor  *RiskAssessor
}

// NewGetRiskHandler creates a GetRiskHandler.
func NewGetRiskHandler(directory engagement.DirectoryRepository, analyzer *Analyzer, assessor *RiskAssessor) *GetRiskHandler {
	return &GetRiskHandler{directory: directory, analyzer: analyzer, assessor: assessor}
}

// Handle executes the query.
func (h *GetRiskHandler) Handle(ctx context.Context, q GetRiskQuery) (*RiskResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	st, _, err := resolve(ctx, h.directory, "GetRisk", q.StudentID, q.CourseID)
	if err != nil {
		return nil, err
	}

	_, snap, err := h.analyzer.Engagement(ctx, q.StudentID, q.CourseID, q.WeekNumber)
	if err != nil {
		return nil, analyticsError("GetRisk", err)
	}

	a := h.assessor.Assess(ctx, st, q.CourseID, snap)
	return &RiskResult{
		StudentID:   q.StudentID,
		CourseID:    q.CourseID,
		Engagement:  snap,
		Assessment:  a,
		Risk:        newRiskDTO(a),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
