// Package apierr defines the core's error kinds and how they render into
// the ApiResponse shape clients depend on.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds the core distinguishes between.
type Kind string

const (
	InvalidInput       Kind = "InvalidInput"
	NotFound           Kind = "NotFound"
	ServiceUnavailable Kind = "ServiceUnavailable"
	Conflict           Kind = "Conflict"
	Transient          Kind = "Transient"
	Internal           Kind = "Internal"
)

// Error is a typed error carrying a Kind plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Field   string // optional: which input field was at fault
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error without a field or wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField attaches the input field this error concerns.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// KindOf extracts the Kind of err, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// FieldError is one entry of ApiResponse.Errors.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ApiResponse is the top-level shape the Search API and Index Maintenance
// API return. Data is left as `any` so every handler can plug in its own
// payload type.
type ApiResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors"`
}

// Render converts err into the user-visible ApiResponse shape plus the HTTP
// status code that should accompany it.
func Render(err error) (ApiResponse, int) {
	var ae *Error
	if !errors.As(err, &ae) {
		return ApiResponse{
			Success: false,
			Message: "internal error",
			Errors:  []FieldError{{Field: "", Message: err.Error()}},
		}, 500
	}

	status := map[Kind]int{
		InvalidInput:       400,
		NotFound:           404,
		ServiceUnavailable: 503,
		Conflict:           409,
		Transient:          503,
		Internal:           500,
	}[ae.Kind]
	if status == 0 {
		status = 500
	}

	return ApiResponse{
		Success: false,
		Message: ae.Message,
		Errors:  []FieldError{{Field: ae.Field, Message: ae.Error()}},
	}, status
}

// Success wraps a successful payload into the ApiResponse shape.
func Success(message string, data any) ApiResponse {
	return ApiResponse{Success: true, Message: message, Data: data, Errors: []FieldError{}}
}
