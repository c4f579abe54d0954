package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError("risk", "Validate", ErrInvalidInput, "bad weights")
	assert.Equal(t, "risk.Validate: bad weights", err.Error())

	wrapped := WrapError("query", "GetRisk", ErrServiceUnavailable, "failed to load", errors.New("conn reset"))
	assert.Equal(t, "query.GetRisk: failed to load: conn reset", wrapped.Error())
}

func TestDomainError_Is(t *testing.T) {
	cause := errors.New("conn reset")
	err := WrapError("query", "GetRisk", ErrServiceUnavailable, "failed to load", cause)

	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		validation bool
		external   bool
		retryable  bool
	}{
		{"student not found", ErrStudentNotFound, true, false, false, false},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrCourseNotFound), true, false, false, false},
		{"invalid policy", ErrInvalidPolicy, false, true, false, false},
		{"feature length", ErrModelFeatureMissing, false, true, false, false},
		{"timeout", ErrTimeout, false, false, true, true},
		{"external", ErrExternalService, false, false, true, false},
		{"plain", errors.New("boom"), false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.external, IsExternalService(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 66.7, Round1(66.66))
	assert.Equal(t, 0.3, Round1(0.25))
	assert.Equal(t, -0.3, Round1(-0.25))
}
