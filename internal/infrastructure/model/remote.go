package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/learnsight/engagement-analytics/internal/domain/risk"
	"github.com/learnsight/engagement-analytics/internal/domain/shared"
	"github.com/learnsight/engagement-analytics/pkg/circuitbreaker"
	"github.com/learnsight/engagement-analytics/pkg/logger"
	"github.com/learnsight/engagement-analytics/pkg/retry"
)

// RemoteConfig configures the model server client.
type RemoteConfig struct {
	// BaseURL is the model server root, e.g. http://model:8500.
	BaseURL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Probabilities enables calls to /predict_proba.
	Probabilities bool

	Logger *logger.Logger
}

// DefaultRemoteConfig returns defaults for baseURL.
func DefaultRemoteConfig(baseURL string) RemoteConfig {
	return RemoteConfig{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Timeout:       2 * time.Second,
		Probabilities: true,
	}
}

// RemoteClassifier calls a model server over HTTP.
//
//	POST /predict        {"features":[...]} -> {"prediction":"High"} or {"prediction":2}
//	POST /predict_proba  {"features":[...]} -> {"probabilities":[0.1,0.3,0.6]}
type RemoteClassifier struct {
	config     RemoteConfig
	httpClient *http.Client
	backoff    retry.Backoff
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

var _ risk.ProbabilityClassifier = (*RemoteClassifier)(nil)

// NewRemoteClassifier creates a model server client.
func NewRemoteClassifier(config RemoteConfig) *RemoteClassifier {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	log := config.Logger.With(logger.Component("model-client"))

	return &RemoteClassifier{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		backoff: retry.ModelServer(func(attempt int, err error, wait time.Duration) {
			log.Debug("retrying model server call",
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Err(err),
			)
		}),
		breaker: circuitbreaker.ModelServerBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("model server circuit changed state",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// BreakerState exposes the circuit state for health reporting.
func (c *RemoteClassifier) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Prediction json.RawMessage `json:"prediction"`
}

type probaResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// Predict implements risk.Classifier.
func (c *RemoteClassifier) Predict(ctx context.Context, f risk.Features) (risk.Prediction, error) {
	var resp predictResponse
	if err := c.call(ctx, "/predict", f, &resp); err != nil {
		return risk.Prediction{}, err
	}
	return decodePrediction(resp.Prediction)
}

// PredictProbabilities implements risk.ProbabilityClassifier.
func (c *RemoteClassifier) PredictProbabilities(ctx context.Context, f risk.Features) ([]float64, error) {
	if !c.config.Probabilities {
		return nil, errors.New("probabilities disabled for model server")
	}
	var resp probaResponse
	if err := c.call(ctx, "/predict_proba", f, &resp); err != nil {
		return nil, err
	}
	if len(resp.Probabilities) == 0 {
		return nil, fmt.Errorf("%w: empty probabilities", shared.ErrModelInvalidOutput)
	}
	return resp.Probabilities, nil
}

// decodePrediction accepts a JSON string or number, or a one-element array of either.
func decodePrediction(raw json.RawMessage) (risk.Prediction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return risk.Prediction{}, fmt.Errorf("%w: missing prediction", shared.ErrModelInvalidOutput)
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return risk.Prediction{}, fmt.Errorf("%w: prediction %s", shared.ErrModelInvalidOutput, raw)
		}
		return decodePrediction(items[0])
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return risk.ParsePrediction(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return codePrediction(n), nil
	}
	return risk.UnknownPrediction(string(raw)), nil
}

// codePrediction accepts integral class codes only. 1.9 or 1e300 are unknown.
func codePrediction(n json.Number) risk.Prediction {
	if i, err := n.Int64(); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
		return risk.CodePrediction(int(i))
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
		return risk.CodePrediction(int(f))
	}
	return risk.UnknownPrediction(n.String())
}

func (c *RemoteClassifier) call(ctx context.Context, path string, f risk.Features, out any) error {
	body, err := json.Marshal(predictRequest{Features: f.Vector()})
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	start := time.Now()
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.backoff.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, path, body, out)
		})
	})
	if err != nil {
		if circuitbreaker.IsRejected(err) || errors.Is(err, context.Canceled) {
			return err
		}
		c.log.Warn("model server call failed",
			logger.Path(path),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return shared.WrapError("model", "Predict", shared.ErrExternalService, "model server request failed", err)
	}
	return nil
}

// post performs one attempt. Network errors and 5xx responses are retryable.
func (c *RemoteClassifier) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("model server returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return retry.Permanent(fmt.Errorf("model server returned %d: %s", resp.StatusCode, truncate(respBody, 200)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrModelInvalidOutput, err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
