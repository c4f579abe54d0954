package risk

import (
	"context"
	"fmt"

	"github.com/learnsight/engagement-analytics/internal/domain/engagement"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// Input is what both strategies estimate from.
type Input struct {
	Engagement engagement.Snapshot
	Gender     engagement.Gender
	StudentID  int64
	CourseID   int64
}

// Assessment is the common output of every strategy.
type Assessment struct {
	Score     float64 `json:"risk_score"`
	Level     Level   `json:"risk_level"`
	Color     Color   `json:"risk_color"`
	Feedback  string  `json:"feedback"`
	UsedModel bool    `json:"used_model"`
}

// Summary renders the one-line risk statement shown on dashboards.
func (a Assessment) Summary() string {
	return fmt.Sprintf("Your current risk of failing is %.2f (%s).", shared.Round2(a.Score), a.Level.Label())
}

// Estimator produces an Assessment. Implementations never fail: every
// problem is resolved into a lower-fidelity estimate.
type Estimator interface {
	Estimate(ctx context.Context, in Input) Assessment
}

// Commenter writes the short feedback attached to an assessment.
type Commenter interface {
	Comment(snapshot engagement.Snapshot, level Level) string
}

// CommenterFunc adapts a function to Commenter.
type CommenterFunc func(snapshot engagement.Snapshot, level Level) string

// Comment implements Commenter.
func (f CommenterFunc) Comment(snapshot engagement.Snapshot, level Level) string {
	return f(snapshot, level)
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMULA STRATEGY
// ══════════════════════════════════════════════════════════════════════════════

// FormulaEstimator computes risk as the weighted shortfall of each engagement
// percentage from 100.
type FormulaEstimator struct {
	policy    Policy
	commenter Commenter
}

// NewFormulaEstimator creates a formula estimator. commenter may be nil.
func NewFormulaEstimator(policy Policy, commenter Commenter) *FormulaEstimator {
	return &FormulaEstimator{policy: policy, commenter: commenter}
}

// Policy returns the policy in use.
func (e *FormulaEstimator) Policy() Policy {
	return e.policy
}

// Score returns the unrounded formula score in [0,1].
func (e *FormulaEstimator) Score(s engagement.Snapshot) float64 {
	w := e.policy.Weights
	score := w.Attendance*shortfall(s.Attendance) +
		w.Assignments*shortfall(s.Assignments) +
		w.Quizzes*shortfall(s.Quizzes) +
		w.Labs*shortfall(s.LabActivity)
	return shared.ClampUnit(score)
}

// Estimate implements Estimator.
func (e *FormulaEstimator) Estimate(_ context.Context, in Input) Assessment {
	return e.assess(in.Engagement, e.Score(in.Engagement), false)
}

func (e *FormulaEstimator) assess(s engagement.Snapshot, score float64, usedModel bool) Assessment {
	level, color := e.policy.Classify(score)
	a := Assessment{
		Score:     score,
		Level:     level,
		Color:     color,
		UsedModel: usedModel,
	}
	if e.commenter != nil {
		a.Feedback = e.commenter.Comment(s, level)
	}
	return a
}

func shortfall(pct float64) float64 {
	return (100 - shared.ClampPercent(pct)) / 100
}
