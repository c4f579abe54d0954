// Package shared holds the error kinds, events and numeric helpers used by
// every analytics package. It imports nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. A DomainError carries one of them so callers can classify the
// failure with errors.Is or the Is* helpers without parsing messages.
var (
	ErrNotFound = errors.New("not found")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrExternalService    = errors.New("external service failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timed out")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError is a failure of one operation, tagged with the package area it
// happened in and its kind.
//
// The printed form is "domain.op: message" followed by ": cause" when the
// error wraps another one.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	head := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err == nil {
		return head
	}
	return fmt.Sprintf("%s: %v", head, e.Err)
}

// Unwrap exposes the cause, or the kind when there is no cause.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and anything in the cause chain, so a wrapped
// error stays classifiable after it crosses a package boundary.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError returns an error without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError returns an error caused by err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Lookups in the LMS directory.
var (
	ErrStudentNotFound = NewDomainError("directory", "FindStudent", ErrNotFound, "student not found")
	ErrCourseNotFound  = NewDomainError("directory", "FindCourse", ErrNotFound, "course not found")
)

// ErrInvalidPolicy reports a risk policy whose weights or thresholds are unusable.
var ErrInvalidPolicy = NewDomainError("risk", "Validate", ErrInvalidInput, "invalid risk policy")

// Failures of the risk model artifact or server.
var (
	ErrModelChecksum       = NewDomainError("model", "Load", ErrInvalidFormat, "model artifact checksum mismatch")
	ErrModelInvalidOutput  = NewDomainError("model", "Parse", ErrInvalidFormat, "invalid output from model")
	ErrModelFeatureMissing = NewDomainError("model", "Predict", ErrInvalidInput, "feature vector has wrong length")
)

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsNotFound reports a missing student, course or registration.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports bad caller input. Handlers map it to 400.
func IsValidation(err error) bool {
	return isAny(err, ErrValidation, ErrInvalidInput, ErrValueOutOfRange)
}

// IsExternalService reports a failure of the database, Redis or model server.
func IsExternalService(err error) bool {
	return isAny(err, ErrExternalService, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}

// IsRetryable reports a transient external failure.
func IsRetryable(err error) bool {
	return isAny(err, ErrServiceUnavailable, ErrTimeout, ErrRateLimited)
}
