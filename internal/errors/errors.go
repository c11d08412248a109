package errors

import (
	"fmt"
	"sort"
)

// ErrorCode represents an intake error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"          // 404
	ErrDispatchInFlight ErrorCode = "DISPATCH_IN_FLIGHT" // 409
	ErrAlreadySubmitted ErrorCode = "ALREADY_SUBMITTED"  // 409
	ErrUniqueConstraint ErrorCode = "UNIQUE_CONSTRAINT"  // 409
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"  // 422
	ErrIncomplete       ErrorCode = "INCOMPLETE"         // 422
	ErrInternal         ErrorCode = "INTERNAL"           // 500
	ErrDispatchFailed   ErrorCode = "DISPATCH_FAILED"    // 502
)

// IntakeError represents a structured error with code, status, and details.
type IntakeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *IntakeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *IntakeError {
	return &IntakeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a submission id with no stored draft.
func NewNotFound(identifier string) *IntakeError {
	return &IntakeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("submission not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewDispatchInFlight creates a 409 error when a dispatch for the same
// submission is already running.
func NewDispatchInFlight(identifier string) *IntakeError {
	return &IntakeError{
		Code:    ErrDispatchInFlight,
		Status:  409,
		Message: fmt.Sprintf("submission %s is already being sent", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewValidationFailed creates a 422 error carrying the per-field error set.
func NewValidationFailed(fieldErrors map[string]string) *IntakeError {
	names := make([]string, 0, len(fieldErrors))
	for name := range fieldErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]any, len(fieldErrors))
	for name, msg := range fieldErrors {
		fields[name] = msg
	}

	return &IntakeError{
		Code:    ErrValidationFailed,
		Status:  422,
		Message: fmt.Sprintf("invalid fields: %v", names),
		Details: map[string]any{"fields": fields},
	}
}

// NewIncomplete creates a 422 error listing sections with unfilled required fields.
func NewIncomplete(sections []int) *IntakeError {
	return &IntakeError{
		Code:    ErrIncomplete,
		Status:  422,
		Message: fmt.Sprintf("required fields missing in sections: %v", sections),
		Details: map[string]any{"sections": sections},
	}
}

// NewDispatchFailed creates a 502 error carrying the relay's own error text.
func NewDispatchFailed(msg string) *IntakeError {
	if msg == "" {
		msg = "Unknown error"
	}
	return &IntakeError{
		Code:    ErrDispatchFailed,
		Status:  502,
		Message: msg,
	}
}

// NewAlreadySubmitted creates a 409 error for a session that already reached
// its terminal state.
func NewAlreadySubmitted(identifier string) *IntakeError {
	return &IntakeError{
		Code:    ErrAlreadySubmitted,
		Status:  409,
		Message: fmt.Sprintf("submission %s was already sent", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *IntakeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &IntakeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is an IntakeError with the given code.
func Is(err error, code ErrorCode) bool {
	if iErr, ok := err.(*IntakeError); ok {
		return iErr.Code == code
	}
	return false
}
