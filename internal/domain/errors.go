package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error classes. Use errors.Is to classify wrapped errors.
var (
	ErrValidation = errors.New("validation error")
	ErrData       = errors.New("data error")
	ErrInvariant  = errors.New("invariant violation")
)

// ValidationError reports malformed configuration, rejected before any candle is processed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataError reports unusable input data. The affected call is skipped with Reason recorded.
type DataError struct {
	CallID string
	Reason string
}

func (e *DataError) Error() string {
	if e.CallID == "" {
		return "data error: " + e.Reason
	}
	return fmt.Sprintf("data error: call %s: %s", e.CallID, e.Reason)
}

// Is reports whether target is ErrData.
func (e *DataError) Is(target error) bool {
	return target == ErrData
}

// InvariantViolation reports an internal defect detected by a post-condition.
// It aborts only the evaluation that produced it.
type InvariantViolation struct {
	Invariant string
	Context   map[string]any
}

func (e *InvariantViolation) Error() string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
	}
	return fmt.Sprintf("invariant violation: %s [%s]", e.Invariant, strings.Join(parts, " "))
}

// Is reports whether target is ErrInvariant.
func (e *InvariantViolation) Is(target error) bool {
	return target == ErrInvariant
}
