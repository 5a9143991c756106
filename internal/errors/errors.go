// Package errors provides structured error types for the task orchestrator.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes surfaced in tool responses.
const (
	// CodeValidation covers malformed input, forbidden transitions,
	// prerequisite failures, and verification gate failures.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeNotFound covers unknown ids and missing parent references.
	CodeNotFound Code = "RESOURCE_NOT_FOUND"

	// CodeConflict covers unique/constraint violations from storage.
	CodeConflict Code = "CONFLICT_ERROR"

	// CodeDatabase covers any other repository failure.
	CodeDatabase Code = "DATABASE_ERROR"

	// CodeOperationFailed marks a batch operation with zero successes.
	CodeOperationFailed Code = "OPERATION_FAILED"

	// CodeInternal marks unexpected failures caught at the tool boundary.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeValidation:      CategoryBadRequest,
	CodeNotFound:        CategoryNotFound,
	CodeConflict:        CategoryConflict,
	CodeDatabase:        CategoryInternal,
	CodeOperationFailed: CategoryBadRequest,
	CodeInternal:        CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	default:
		return 500
	}
}

// AppError is the structured error type for the orchestrator.
// What is the human-readable sentence shown as the response message,
// Why carries the diagnostic detail, and AdditionalData holds
// machine-readable context such as suggestions or failing criteria.
type AppError struct {
	Code           Code           `json:"code"`
	What           string         `json:"what"`
	Why            string         `json:"why,omitempty"`
	Fix            string         `json:"fix,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
	Cause          error          `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Details returns the diagnostic string for the response envelope.
// Falls back to What when no separate detail was recorded.
func (e *AppError) Details() string {
	if e.Why != "" {
		return e.Why
	}
	return e.What
}

// Category returns the error category for HTTP status mapping.
func (e *AppError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *AppError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias AppError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *AppError) WithCause(err error) *AppError {
	return &AppError{
		Code:           e.Code,
		What:           e.What,
		Why:            e.Why,
		Fix:            e.Fix,
		AdditionalData: e.AdditionalData,
		Cause:          err,
	}
}

// WithData returns a copy of the error with key set in AdditionalData.
func (e *AppError) WithData(key string, value any) *AppError {
	data := make(map[string]any, len(e.AdditionalData)+1)
	for k, v := range e.AdditionalData {
		data[k] = v
	}
	data[key] = value
	return &AppError{
		Code:           e.Code,
		What:           e.What,
		Why:            e.Why,
		Fix:            e.Fix,
		AdditionalData: data,
		Cause:          e.Cause,
	}
}

// --- Error constructors ---

// ErrValidation returns a generic validation error.
func ErrValidation(what, why string) *AppError {
	return &AppError{
		Code: CodeValidation,
		What: what,
		Why:  why,
	}
}

// ErrInvalidTransition returns an error for a rejected status transition.
// Suggestions are attached in AdditionalData alongside the attempted move.
func ErrInvalidTransition(current, target, reason string, suggestions []string) *AppError {
	data := map[string]any{
		"currentStatus":   current,
		"attemptedStatus": target,
	}
	if len(suggestions) > 0 {
		data["suggestions"] = suggestions
	}
	return &AppError{
		Code:           CodeValidation,
		What:           fmt.Sprintf("cannot transition from '%s' to '%s'", current, target),
		Why:            reason,
		AdditionalData: data,
	}
}

// ErrVerificationFailed returns an error for an unsatisfied verification gate.
func ErrVerificationFailed(failing []string) *AppError {
	return &AppError{
		Code: CodeValidation,
		What: "verification criteria not met",
		Why:  fmt.Sprintf("%d verification criteria have not passed", len(failing)),
		Fix:  "Mark all criteria in the Verification section as passed, then retry",
		AdditionalData: map[string]any{
			"gate":            "verification",
			"failingCriteria": failing,
		},
	}
}

// ErrContainerNotFound returns an error when an entity doesn't exist.
func ErrContainerNotFound(containerType, id string) *AppError {
	return &AppError{
		Code: CodeNotFound,
		What: fmt.Sprintf("%s %s not found", containerType, id),
		Why:  fmt.Sprintf("No %s with this ID exists", containerType),
		Fix:  "Use query_container with operation 'search' to list existing containers",
	}
}

// ErrParentNotFound returns an error when a referenced parent doesn't exist.
func ErrParentNotFound(parentType, id string) *AppError {
	return &AppError{
		Code: CodeNotFound,
		What: fmt.Sprintf("referenced %s %s not found", parentType, id),
		Why:  fmt.Sprintf("The %sId must reference an existing %s", parentType, parentType),
		Fix:  fmt.Sprintf("Create the %s first, or clear the reference", parentType),
	}
}

// ErrConflict returns an error for a storage constraint violation.
func ErrConflict(what, why string) *AppError {
	return &AppError{
		Code: CodeConflict,
		What: what,
		Why:  why,
	}
}

// ErrDatabase returns an error for a repository failure.
func ErrDatabase(op string, cause error) *AppError {
	return &AppError{
		Code:  CodeDatabase,
		What:  fmt.Sprintf("database operation failed: %s", op),
		Cause: cause,
	}
}

// ErrOperationFailed returns an error for a batch with zero successes.
func ErrOperationFailed(what, why string) *AppError {
	return &AppError{
		Code: CodeOperationFailed,
		What: what,
		Why:  why,
	}
}

// ErrInternal returns an error for an unexpected failure.
func ErrInternal(what string) *AppError {
	return &AppError{
		Code: CodeInternal,
		What: what,
		Why:  "An unexpected error occurred while handling the request",
	}
}

// AsAppError attempts to convert an error to an AppError.
// Returns nil if the error is not an AppError.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr
	}
	return nil
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return asError(err, target)
}

// asError implements errors.As behavior.
func asError(err error, target any) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		if t, ok := target.(**AppError); ok {
			*t = appErr
			return true
		}
	}
	// Check unwrapped error
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asError(unwrapper.Unwrap(), target)
	}
	return false
}

// Wrap wraps a generic error into an AppError with internal code.
func Wrap(err error, what string) *AppError {
	return &AppError{
		Code:  CodeInternal,
		What:  what,
		Cause: err,
	}
}
