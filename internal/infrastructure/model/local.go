// Package model provides the trained risk classifiers behind risk.Classifier:
// a local logistic-regression artifact evaluated in process and an HTTP client
// for a remote model server.
package model

import (
	"cmp"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
)

// FeatureOrder is the input order the artifacts are trained with.
var FeatureOrder = []string{"gender", "quiz_avg", "assignment_avg", "attendance_rate"}

// Artifact is the exported form of a scaler + logistic regression pipeline.
//
// A multinomial model has one Coef row and one Intercept per class.
// A binary model has one Coef row, one Intercept and two Classes, the second
// being the positive class.
type Artifact struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Classes  []string `json:"classes"`

	Scaler struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`

	Coef      [][]float64 `json:"coef"`
	Intercept []float64   `json:"intercept"`
}

// Validate checks shapes and feature order.
func (a *Artifact) Validate() error {
	n := len(FeatureOrder)
	if strings.Join(a.Features, ",") != strings.Join(FeatureOrder, ",") {
		return fmt.Errorf("%w: features %v, want %v", shared.ErrModelInvalidOutput, a.Features, FeatureOrder)
	}
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
		return fmt.Errorf("%w: scaler needs %d means and scales", shared.ErrModelInvalidOutput, n)
	}
	for i, s := range a.Scaler.Scale {
		if s == 0 {
			return fmt.Errorf("%w: scaler scale[%d] is zero", shared.ErrModelInvalidOutput, i)
		}
	}
	if len(a.Coef) != len(a.Intercept) || len(a.Coef) == 0 {
		return fmt.Errorf("%w: %d coefficient rows for %d intercepts", shared.ErrModelInvalidOutput, len(a.Coef), len(a.Intercept))
	}
	for i, row := range a.Coef {
		if len(row) != n {
			return fmt.Errorf("%w: coef row %d has %d weights", shared.ErrModelInvalidOutput, i, len(row))
		}
	}
	switch {
	case len(a.Coef) == 1 && len(a.Classes) == 2:
	case len(a.Coef) == 3 && len(a.Classes) == 3:
	default:
		return fmt.Errorf("%w: %d classes for %d coefficient rows", shared.ErrModelInvalidOutput, len(a.Classes), len(a.Coef))
	}
	return nil
}

// classOrder maps artifact classes onto the canonical probability order:
// [Low, Medium, High], or [negative, positive] for a binary model.
// order[i] is the artifact index of canonical class i.
func classOrder(classes []string) (order []int, labels []risk.Label, err error) {
	order = make([]int, len(classes))
	labels = make([]risk.Label, len(classes))
	seen := make(map[risk.Label]bool, len(classes))
	for i, c := range classes {
		p := risk.ParsePrediction(c)
		if !p.Known() {
			return nil, nil, fmt.Errorf("%w: class %q is not a risk level", shared.ErrModelInvalidOutput, c)
		}
		if seen[p.Label()] {
			return nil, nil, fmt.Errorf("%w: class %q resolves to %s twice", shared.ErrModelInvalidOutput, c, p.Label())
		}
		seen[p.Label()] = true
		order[i] = i
		labels[i] = p.Label()
	}

	severity := func(i int) float64 { return risk.LabelPrediction(labels[i]).BaseRisk() }
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(severity(a), severity(b)) })

	sorted := make([]risk.Label, len(order))
	for i, idx := range order {
		sorted[i] = labels[idx]
	}
	return order, sorted, nil
}

// LocalClassifier evaluates an Artifact in process.
type LocalClassifier struct {
	artifact Artifact
	checksum string

	order  []int
	labels []risk.Label
}

var _ risk.ProbabilityClassifier = (*LocalClassifier)(nil)

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewLocalClassifier decodes and validates an artifact. When expectedChecksum
// is not empty it must match the BLAKE2b-256 digest of data.
func NewLocalClassifier(data []byte, expectedChecksum string) (*LocalClassifier, error) {
	sum := Checksum(data)
	if expectedChecksum != "" && !strings.EqualFold(sum, expectedChecksum) {
		return nil, fmt.Errorf("%w: got %s", shared.ErrModelChecksum, sum)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrModelInvalidOutput, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	order, labels, err := classOrder(a.Classes)
	if err != nil {
		return nil, err
	}
	return &LocalClassifier{artifact: a, checksum: sum, order: order, labels: labels}, nil
}

// LoadLocalClassifier reads an artifact from path.
func LoadLocalClassifier(path, expectedChecksum string) (*LocalClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}
	return NewLocalClassifier(data, expectedChecksum)
}

// Describe returns name, version and checksum for start-up logging.
func (c *LocalClassifier) Describe() (name, version, checksum string) {
	return c.artifact.Name, c.artifact.Version, c.checksum
}

// Predict returns the most probable class.
func (c *LocalClassifier) Predict(ctx context.Context, f risk.Features) (risk.Prediction, error) {
	probs, err := c.PredictProbabilities(ctx, f)
	if err != nil {
		return risk.Prediction{}, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return risk.LabelPrediction(c.labels[best]), nil
}

// PredictProbabilities returns class probabilities ordered [Low, Medium, High]
// or [negative, positive], whatever order the artifact lists its classes in.
func (c *LocalClassifier) PredictProbabilities(ctx context.Context, f risk.Features) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x := f.Vector()
	if len(x) != len(c.artifact.Scaler.Mean) {
		return nil, shared.ErrModelFeatureMissing
	}
	z := make([]float64, len(x))
	for i := range x {
		z[i] = (x[i] - c.artifact.Scaler.Mean[i]) / c.artifact.Scaler.Scale[i]
	}

	logits := make([]float64, len(c.artifact.Coef))
	for k, row := range c.artifact.Coef {
		logits[k] = c.artifact.Intercept[k]
		for i, w := range row {
			logits[k] += w * z[i]
		}
	}

	var raw []float64
	if len(logits) == 1 {
		p := sigmoid(logits[0])
		raw = []float64{1 - p, p}
	} else {
		raw = softmax(logits)
	}

	out := make([]float64, len(raw))
	for i, idx := range c.order {
		out[i] = raw[idx]
	}
	return out, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func softmax(v []float64) []float64 {
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
