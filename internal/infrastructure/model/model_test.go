package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
	"github.com/learnsight/engagement-analytics/pkg/circuitbreaker"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

// threeClassArtifact favours High as attendance drops.
const threeClassArtifact = `{
  "name": "risk-lr",
  "version": "2024.1",
  "features": ["gender", "quiz_avg", "assignment_avg", "attendance_rate"],
  "classes": ["Low", "Medium", "High"],
  "scaler": {"mean": [0.5, 50, 50, 50], "scale": [0.5, 25, 25, 25]},
  "coef": [[0, 0, 0, 2], [0, 0, 0, 0], [0, 0, 0, -2]],
  "intercept": [0, 0, 0]
}`

func TestLocalClassifier_ThreeClass(t *testing.T) {
	c, err := NewLocalClassifier([]byte(threeClassArtifact), "")
	require.NoError(t, err)

	ctx := context.Background()

	p, err := c.Predict(ctx, risk.Features{AttendanceRate: 10})
	require.NoError(t, err)
	assert.Equal(t, risk.LabelHigh, p.Label())

	p, err = c.Predict(ctx, risk.Features{AttendanceRate: 95})
	require.NoError(t, err)
	assert.Equal(t, risk.LabelLow, p.Label())

	probs, err := c.PredictProbabilities(ctx, risk.Features{AttendanceRate: 50})
	require.NoError(t, err)
	require.Len(t, probs, 3)
	for _, v := range probs {
		assert.InDelta(t, 1.0/3, v, 1e-9)
	}

	name, version, sum := c.Describe()
	assert.Equal(t, "risk-lr", name)
	assert.Equal(t, "2024.1", version)
	assert.Equal(t, Checksum([]byte(threeClassArtifact)), sum)
}

func TestLocalClassifier_Binary(t *testing.T) {
	data := `{
	  "features": ["gender", "quiz_avg", "assignment_avg", "attendance_rate"],
	  "classes": ["Low", "High"],
	  "scaler": {"mean": [0, 0, 0, 0], "scale": [1, 1, 1, 1]},
	  "coef": [[0, 0, 0, 0]],
	  "intercept": [0]
	}`
	c, err := NewLocalClassifier([]byte(data), "")
	require.NoError(t, err)

	probs, err := c.PredictProbabilities(context.Background(), risk.Features{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, probs)
}

func TestLocalClassifier_SortedClassNames(t *testing.T) {
	// Exporters that sort class names write High, Low, Medium.
	data := `{
	  "features": ["gender", "quiz_avg", "assignment_avg", "attendance_rate"],
	  "classes": ["High", "Low", "Medium"],
	  "scaler": {"mean": [0, 0, 0, 0], "scale": [1, 1, 1, 1]},
	  "coef": [[0, 0, 0, 0], [0, 0, 0, 0], [0, 0, 0, 0]],
	  "intercept": [-5, 5, 0]
	}`
	c, err := NewLocalClassifier([]byte(data), "")
	require.NoError(t, err)

	ctx := context.Background()
	probs, err := c.PredictProbabilities(ctx, risk.Features{})
	require.NoError(t, err)
	require.Len(t, probs, 3)
	assert.Greater(t, probs[0], 0.99, "low first")
	assert.Less(t, probs[2], probs[1], "high last")

	p, err := c.Predict(ctx, risk.Features{})
	require.NoError(t, err)
	assert.Equal(t, risk.LabelLow, p.Label())

	est := risk.NewModelEstimator(c, risk.NewFormulaEstimator(risk.DefaultPolicy(), nil))
	a := est.Estimate(ctx, risk.Input{})
	assert.True(t, a.UsedModel)
	assert.Equal(t, risk.LevelLow, a.Level)
	assert.Less(t, a.Score, 0.01)
}

func TestLocalClassifier_BinaryNegativeListedLast(t *testing.T) {
	data := `{
	  "features": ["gender", "quiz_avg", "assignment_avg", "attendance_rate"],
	  "classes": ["High", "Low"],
	  "scaler": {"mean": [0, 0, 0, 0], "scale": [1, 1, 1, 1]},
	  "coef": [[0, 0, 0, 0]],
	  "intercept": [3]
	}`
	c, err := NewLocalClassifier([]byte(data), "")
	require.NoError(t, err)

	// The sigmoid gives P(Low) here, so it must land in the negative slot.
	probs, err := c.PredictProbabilities(context.Background(), risk.Features{})
	require.NoError(t, err)
	require.Len(t, probs, 2)
	assert.Greater(t, probs[0], probs[1])
}

func TestLocalClassifier_Checksum(t *testing.T) {
	_, err := NewLocalClassifier([]byte(threeClassArtifact), "deadbeef")
	assert.ErrorIs(t, err, shared.ErrModelChecksum)

	_, err = NewLocalClassifier([]byte(threeClassArtifact), Checksum([]byte(threeClassArtifact)))
	assert.NoError(t, err)
}

func TestLocalClassifier_RejectsBadArtifacts(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"wrong features", `{"features":["a"],"classes":["Low","High"],"scaler":{"mean":[0],"scale":[1]},"coef":[[0]],"intercept":[0]}`},
		{"zero scale", `{"features":["gender","quiz_avg","assignment_avg","attendance_rate"],"classes":["Low","High"],"scaler":{"mean":[0,0,0,0],"scale":[1,0,1,1]},"coef":[[0,0,0,0]],"intercept":[0]}`},
		{"class mismatch", `{"features":["gender","quiz_avg","assignment_avg","attendance_rate"],"classes":["Low","Medium"],"scaler":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"coef":[[0,0,0,0],[0,0,0,0]],"intercept":[0,0]}`},
		{"unknown class", `{"features":["gender","quiz_avg","assignment_avg","attendance_rate"],"classes":["Low","Medium","Severe"],"scaler":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"coef":[[0,0,0,0],[0,0,0,0],[0,0,0,0]],"intercept":[0,0,0]}`},
		{"duplicate class", `{"features":["gender","quiz_avg","assignment_avg","attendance_rate"],"classes":["Low","low risk","High"],"scaler":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"coef":[[0,0,0,0],[0,0,0,0],[0,0,0,0]],"intercept":[0,0,0]}`},
		{"four classes", `{"features":["gender","quiz_avg","assignment_avg","attendance_rate"],"classes":["Low","Medium","High","0"],"scaler":{"mean":[0,0,0,0],"scale":[1,1,1,1]},"coef":[[0,0,0,0],[0,0,0,0],[0,0,0,0],[0,0,0,0]],"intercept":[0,0,0,0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocalClassifier([]byte(tt.data), "")
			assert.ErrorIs(t, err, shared.ErrModelInvalidOutput)
		})
	}
}

func TestLoadLocalClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(threeClassArtifact), 0o600))

	c, err := LoadLocalClassifier(path, "")
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = LoadLocalClassifier(filepath.Join(t.TempDir(), "missing.json"), "")
	assert.Error(t, err)
}

func TestLocalClassifier_CancelledContext(t *testing.T) {
	c, err := NewLocalClassifier([]byte(threeClassArtifact), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Predict(ctx, risk.Features{})
	assert.ErrorIs(t, err, context.Canceled)
}

func newRemote(t *testing.T, h http.HandlerFunc) *RemoteClassifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultRemoteConfig(srv.URL + "/")
	cfg.Logger = logger.Nop()
	return NewRemoteClassifier(cfg)
}

func TestRemoteClassifier_Predict(t *testing.T) {
	tests := []struct {
		name string
		body string
		want risk.Label
	}{
		{"string label", `{"prediction":"High"}`, risk.LabelHigh},
		{"numeric code", `{"prediction":1}`, risk.LabelMedium},
		{"array", `{"prediction":["low"]}`, risk.LabelLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/predict", r.URL.Path)
				var req predictRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, []float64{1, 80, 70, 60}, req.Features)
				_, _ = w.Write([]byte(tt.body))
			})

			p, err := c.Predict(context.Background(), risk.Features{Gender: 1, QuizAvg: 80, AssignmentAvg: 70, AttendanceRate: 60})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Label())
		})
	}
}

func TestRemoteClassifier_UnknownPrediction(t *testing.T) {
	c := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"prediction":"Severe"}`))
	})

	p, err := c.Predict(context.Background(), risk.Features{})
	require.NoError(t, err)
	assert.False(t, p.Known())
}

func TestDecodePrediction_NumericCodes(t *testing.T) {
	tests := []struct {
		raw   string
		known bool
		want  risk.Label
	}{
		{"2", true, risk.LabelHigh},
		{"1.0", true, risk.LabelMedium},
		{"1.9", false, ""},
		{"1e300", false, ""},
		{"99999999999999999999", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := decodePrediction(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.known, p.Known())
			assert.Equal(t, tt.want, p.Label())
		})
	}
}

func TestRemoteClassifier_Probabilities(t *testing.T) {
	c := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict_proba", r.URL.Path)
		_, _ = w.Write([]byte(`{"probabilities":[0.2,0.3,0.5]}`))
	})

	probs, err := c.PredictProbabilities(context.Background(), risk.Features{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.3, 0.5}, probs)
}

func TestRemoteClassifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"prediction":"Low"}`))
	})

	p, err := c.Predict(context.Background(), risk.Features{})
	require.NoError(t, err)
	assert.Equal(t, risk.LabelLow, p.Label())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteClassifier_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Predict(context.Background(), risk.Features{})
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteClassifier_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	c := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	for i := 0; i < 3; i++ {
		_, _ = c.Predict(context.Background(), risk.Features{})
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	_, err := c.Predict(context.Background(), risk.Features{})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteClassifier_FeedsModelEstimatorFallback(t *testing.T) {
	c := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	formula := risk.NewFormulaEstimator(risk.DefaultPolicy(), nil)
	est := risk.NewModelEstimator(c, formula)

	a := est.Estimate(context.Background(), risk.Input{})
	assert.False(t, a.UsedModel)
}

func TestOpen(t *testing.T) {
	c, err := Open(Source{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(threeClassArtifact), 0o600))

	c, err = Open(Source{Path: path, URL: "http://ignored"}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalClassifier{}, c)

	_, err = Open(Source{Path: path, Checksum: "deadbeef"}, logger.Nop())
	assert.ErrorIs(t, err, shared.ErrModelChecksum)

	c, err = Open(Source{URL: "http://model:8500/", Remote: DefaultRemoteConfig("")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RemoteClassifier{}, c)
}
