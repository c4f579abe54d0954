package metrics

import (
	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

// RiskObserver logs and counts model strategy diagnostics.
type RiskObserver struct {
	metrics *Metrics
	log     *logger.Logger
}

var _ risk.Observer = (*RiskObserver)(nil)

// NewRiskObserver creates an observer. log may be nil.
func NewRiskObserver(m *Metrics, log *logger.Logger) *RiskObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &RiskObserver{metrics: m, log: log.With(logger.Component("risk-model"))}
}

func (o *RiskObserver) fields(in risk.Input) []logger.Field {
	return []logger.Field{logger.StudentID(in.StudentID), logger.CourseID(in.CourseID)}
}

// ModelUsed implements risk.Observer.
func (o *RiskObserver) ModelUsed(in risk.Input, p risk.Prediction, fromProbabilities bool) {
	o.log.Debug("model prediction used",
		append(o.fields(in), logger.ModelPrediction(p.String()), logger.Bool("from_probabilities", fromProbabilities))...)
}

// ModelFallback implements risk.Observer. A missing model is expected
// configuration and is only counted.
func (o *RiskObserver) ModelFallback(in risk.Input, reason risk.FallbackReason, err error) {
	o.metrics.modelFallbacks.WithLabelValues(string(reason)).Inc()
	if reason == risk.ReasonModelAbsent {
		return
	}
	o.log.Warn("model failed, using formula", append(o.fields(in), logger.Reason(string(reason)), logger.Err(err))...)
}

// UnknownPrediction implements risk.Observer.
func (o *RiskObserver) UnknownPrediction(in risk.Input, p risk.Prediction) {
	o.metrics.modelAnomalies.WithLabelValues("unknown_prediction").Inc()
	o.log.Warn("unrecognised model prediction", append(o.fields(in), logger.ModelPrediction(p.String()))...)
}

// ProbabilitiesFailed implements risk.Observer.
func (o *RiskObserver) ProbabilitiesFailed(in risk.Input, err error) {
	o.metrics.modelAnomalies.WithLabelValues("probabilities_failed").Inc()
	o.log.Warn("model probabilities unavailable", append(o.fields(in), logger.Err(err))...)
}
