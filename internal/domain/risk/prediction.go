package risk

import (
	"context"
	"strconv"
	"strings"
)

// Label is a categorical classifier output.
type Label string

const (
	LabelLow    Label = "Low"
	LabelMedium Label = "Medium"
	LabelHigh   Label = "High"
)

// Base risk values for classifier outputs without probabilities.
const (
	BaseRiskHigh    = 0.8
	BaseRiskMedium  = 0.5
	BaseRiskLow     = 0.2
	BaseRiskUnknown = 0.3
)

type predictionKind int

const (
	kindUnknown predictionKind = iota
	kindLabel
	kindCode
)

// Prediction is a classifier output: a Label, an integer class code, or an
// unrecognised value kept for diagnostics.
type Prediction struct {
	kind  predictionKind
	label Label
	code  int
	raw   string
}

// LabelPrediction wraps a known label.
func LabelPrediction(l Label) Prediction {
	return Prediction{kind: kindLabel, label: l}
}

// CodePrediction wraps an integer class code (0 Low, 1 Medium, 2+ High).
func CodePrediction(code int) Prediction {
	return Prediction{kind: kindCode, code: code}
}

// UnknownPrediction records an output that could not be interpreted.
func UnknownPrediction(raw string) Prediction {
	return Prediction{kind: kindUnknown, raw: raw}
}

// ParsePrediction resolves a textual classifier output. Labels are matched
// case-insensitively and may carry a " risk" suffix; "moderate" means Medium;
// digits are read as a class code.
func ParsePrediction(raw string) Prediction {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, " risk")
	switch s {
	case "high":
		return LabelPrediction(LabelHigh)
	case "medium", "moderate":
		return LabelPrediction(LabelMedium)
	case "low":
		return LabelPrediction(LabelLow)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return CodePrediction(n)
	}
	return UnknownPrediction(raw)
}

// Known reports whether the prediction maps onto a class.
func (p Prediction) Known() bool {
	switch p.kind {
	case kindLabel:
		return p.label == LabelHigh || p.label == LabelMedium || p.label == LabelLow
	case kindCode:
		return true
	}
	return false
}

// Label returns the class, resolving codes. Unknown predictions return "".
func (p Prediction) Label() Label {
	switch p.kind {
	case kindLabel:
		return p.label
	case kindCode:
		switch {
		case p.code >= 2:
			return LabelHigh
		case p.code == 1:
			return LabelMedium
		default:
			return LabelLow
		}
	}
	return ""
}

// BaseRisk maps the prediction to a risk value; unknown outputs give BaseRiskUnknown.
func (p Prediction) BaseRisk() float64 {
	switch p.Label() {
	case LabelHigh:
		return BaseRiskHigh
	case LabelMedium:
		return BaseRiskMedium
	case LabelLow:
		return BaseRiskLow
	}
	return BaseRiskUnknown
}

// String returns the label, code or raw text for logging.
func (p Prediction) String() string {
	switch p.kind {
	case kindLabel:
		return string(p.label)
	case kindCode:
		return strconv.Itoa(p.code)
	}
	return "unknown(" + p.raw + ")"
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Features is the model input in training order.
type Features struct {
	Gender         float64
	QuizAvg        float64
	AssignmentAvg  float64
	AttendanceRate float64
}

// Vector returns [gender, quiz_avg, assignment_avg, attendance_rate].
func (f Features) Vector() []float64 {
	return []float64{f.Gender, f.QuizAvg, f.AssignmentAvg, f.AttendanceRate}
}

// FeaturesFrom builds the model input from an estimator input.
func FeaturesFrom(in Input) Features {
	return Features{
		Gender:         float64(in.Gender),
		QuizAvg:        in.Engagement.Quizzes,
		AssignmentAvg:  in.Engagement.Assignments,
		AttendanceRate: in.Engagement.Attendance,
	}
}

// Classifier is a trained model that predicts a risk class.
type Classifier interface {
	Predict(ctx context.Context, f Features) (Prediction, error)
}

// ProbabilityClassifier also exposes class probabilities ordered
// [Low, Medium, High] or [negative, positive].
type ProbabilityClassifier interface {
	Classifier
	PredictProbabilities(ctx context.Context, f Features) ([]float64, error)
}

// RiskFromProbabilities returns P(Medium)+P(High) for three or more classes,
// P(positive) for two, and false otherwise.
func RiskFromProbabilities(p []float64) (float64, bool) {
	switch {
	case len(p) >= 3:
		return p[1] + p[2], true
	case len(p) == 2:
		return p[1], true
	}
	return 0, false
}
