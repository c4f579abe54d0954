package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// FallbackReason says why the model strategy fell back to the formula.
type FallbackReason string

const (
	ReasonModelAbsent   FallbackReason = "model_absent"
	ReasonPredictError  FallbackReason = "predict_error"
	ReasonPanic         FallbackReason = "panic"
	ReasonInvalidOutput FallbackReason = "invalid_output"
)

var (
	errClassifierPanic = errors.New("classifier panicked")
	errInvalidOutput   = errors.New("classifier returned an unusable score")
)

// Observer receives diagnostics from the model strategy.
type Observer interface {
	ModelUsed(in Input, p Prediction, fromProbabilities bool)
	ModelFallback(in Input, reason FallbackReason, err error)
	UnknownPrediction(in Input, p Prediction)
	ProbabilitiesFailed(in Input, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ModelUsed(Input, Prediction, bool)          {}
func (NopObserver) ModelFallback(Input, FallbackReason, error) {}
func (NopObserver) UnknownPrediction(Input, Prediction)        {}
func (NopObserver) ProbabilitiesFailed(Input, error)           {}

// ModelEstimator asks a Classifier for the risk and falls back to the formula
// whenever the classifier is absent or misbehaves. It never fails.
type ModelEstimator struct {
	classifier Classifier
	formula    *FormulaEstimator
	observer   Observer
}

// ModelOption configures a ModelEstimator.
type ModelOption func(*ModelEstimator)

// WithObserver sets the diagnostics sink.
func WithObserver(o Observer) ModelOption {
	return func(e *ModelEstimator) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewModelEstimator creates a model-backed estimator. classifier may be nil,
// in which case every estimate comes from formula.
func NewModelEstimator(classifier Classifier, formula *FormulaEstimator, opts ...ModelOption) *ModelEstimator {
	e := &ModelEstimator{
		classifier: classifier,
		formula:    formula,
		observer:   NopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate implements Estimator.
func (e *ModelEstimator) Estimate(ctx context.Context, in Input) Assessment {
	if e.classifier == nil {
		e.observer.ModelFallback(in, ReasonModelAbsent, nil)
		return e.formula.Estimate(ctx, in)
	}

	score, err := e.predict(ctx, in)
	if err != nil {
		reason := ReasonPredictError
		switch {
		case errors.Is(err, errClassifierPanic):
			reason = ReasonPanic
		case errors.Is(err, errInvalidOutput):
			reason = ReasonInvalidOutput
		}
		e.observer.ModelFallback(in, reason, err)
		return e.formula.Estimate(ctx, in)
	}

	return e.formula.assess(in.Engagement, score, true)
}

func (e *ModelEstimator) predict(ctx context.Context, in Input) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errClassifierPanic, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	features := FeaturesFrom(in)
	pred, err := e.classifier.Predict(ctx, features)
	if err != nil {
		return 0, err
	}
	if !pred.Known() {
		e.observer.UnknownPrediction(in, pred)
	}
	score = pred.BaseRisk()

	fromProbabilities := false
	if pc, ok := e.classifier.(ProbabilityClassifier); ok {
		probs, perr := pc.PredictProbabilities(ctx, features)
		switch {
		case perr != nil:
			e.observer.ProbabilitiesFailed(in, perr)
		case validProbabilities(probs):
			if r, ok := RiskFromProbabilities(probs); ok {
				score = r
				fromProbabilities = true
			}
		default:
			e.observer.ProbabilitiesFailed(in, fmt.Errorf("%w: probabilities %v", errInvalidOutput, probs))
		}
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, errInvalidOutput
	}
	e.observer.ModelUsed(in, pred, fromProbabilities)
	return shared.ClampUnit(score), nil
}

func validProbabilities(p []float64) bool {
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}
