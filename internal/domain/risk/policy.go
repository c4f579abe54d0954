// Package risk estimates how likely a student is to fail a course, either from
// a trained classifier or from a weighted formula over engagement.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// Level is the risk band.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Label returns the display form, e.g. "HIGH RISK".
func (l Level) Label() string {
	return string(l) + " RISK"
}

// Severity orders levels: LOW=0, MEDIUM=1, HIGH=2.
func (l Level) Severity() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// Color is the display color paired with a level.
type Color string

const (
	ColorGreen  Color = "green"
	ColorOrange Color = "orange"
	ColorRed    Color = "red"
)

// Weights are the per-factor contributions to the formula. They should sum to 1.
type Weights struct {
	Attendance  float64 `json:"attendance"`
	Assignments float64 `json:"assignments"`
	Quizzes     float64 `json:"quizzes"`
	Labs        float64 `json:"labs"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Attendance + w.Assignments + w.Quizzes + w.Labs
}

// Thresholds are the lower bounds of the MEDIUM and HIGH bands.
type Thresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Policy is the deterministic risk configuration. The same thresholds are
// used by the model strategy.
type Policy struct {
	Name       string     `json:"name"`
	Weights    Weights    `json:"weights"`
	Thresholds Thresholds `json:"thresholds"`
}

// Policy names accepted by PolicyByName.
const (
	PolicyWeighted    = "weighted"
	PolicyThreeFactor = "three_factor"
)

// DefaultPolicy is the canonical four-factor table.
func DefaultPolicy() Policy {
	return Policy{
		Name:       PolicyWeighted,
		Weights:    Weights{Attendance: 0.25, Assignments: 0.30, Quizzes: 0.25, Labs: 0.20},
		Thresholds: Thresholds{Medium: 0.30, High: 0.60},
	}
}

// ThreeFactorPolicy ignores labs and uses the wider 0.35/0.65 bands.
func ThreeFactorPolicy() Policy {
	return Policy{
		Name:       PolicyThreeFactor,
		Weights:    Weights{Attendance: 0.30, Assignments: 0.35, Quizzes: 0.35, Labs: 0},
		Thresholds: Thresholds{Medium: 0.35, High: 0.65},
	}
}

// PolicyByName returns a preset policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyWeighted:
		return DefaultPolicy(), nil
	case PolicyThreeFactor:
		return ThreeFactorPolicy(), nil
	}
	return Policy{}, shared.WrapError("risk", "PolicyByName", shared.ErrInvalidInput,
		fmt.Sprintf("unknown risk policy %q", name), nil)
}

// Validate checks weights and thresholds.
func (p Policy) Validate() error {
	var problems []string
	factors := []struct {
		name   string
		weight float64
	}{
		{"attendance", p.Weights.Attendance},
		{"assignments", p.Weights.Assignments},
		{"quizzes", p.Weights.Quizzes},
		{"labs", p.Weights.Labs},
	}
	for _, f := range factors {
		if f.weight < 0 || math.IsNaN(f.weight) {
			problems = append(problems, f.name+" weight must be non-negative")
		}
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1) > 1e-6 {
		problems = append(problems, fmt.Sprintf("weights must sum to 1, got %.4f", sum))
	}
	if !(p.Thresholds.Medium > 0 && p.Thresholds.Medium < p.Thresholds.High && p.Thresholds.High <= 1) {
		problems = append(problems, "thresholds must satisfy 0 < medium < high <= 1")
	}
	if len(problems) > 0 {
		return shared.WrapError("risk", "Validate", shared.ErrInvalidPolicy, strings.Join(problems, "; "), nil)
	}
	return nil
}

// Classify maps a score onto a level and color. Non-decreasing in score.
func (p Policy) Classify(score float64) (Level, Color) {
	switch {
	case score >= p.Thresholds.High:
		return LevelHigh, ColorRed
	case score >= p.Thresholds.Medium:
		return LevelMedium, ColorOrange
	default:
		return LevelLow, ColorGreen
	}
}
