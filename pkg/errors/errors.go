// Package errors defines custom error types and error handling utilities for the apikeyd service.
// Business outcomes of a verification are results, not errors; this package only
// models infrastructure and request-level failures and their HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/apikeyd/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// APIError represents a structured error with additional metadata
type APIError interface {
	error

	// Code returns the stable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable, caller-safe description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) APIError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) APIError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of APIError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Code returns the error code
func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *baseError) Description() string {
	return e.description
}

// Unwrap returns the underlying cause error
func (e *baseError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) APIError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) APIError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new APIError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) APIError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidRequest creates a bad request error
func ErrInvalidRequest(message string) APIError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request body is missing a required field or is otherwise malformed.",
		message,
	)
}

// ErrUnauthorized creates an error for a request that carries no key
func ErrUnauthorized(message string) APIError {
	return NewError(
		constants.ErrCodeUnauthorized,
		http.StatusUnauthorized,
		"A root or api key must be provided either in the body or as a Bearer token.",
		message,
	)
}

// ErrServerError creates an internal error
func ErrServerError(message string) APIError {
	return NewError(
		constants.ErrCodeServerError,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition that prevented it from fulfilling the request.",
		message,
	)
}

// ErrServiceUnavailable creates a temporarily unavailable error
func ErrServiceUnavailable(message string) APIError {
	return NewError(
		constants.ErrCodeServiceUnavailable,
		http.StatusServiceUnavailable,
		"The service is currently unable to handle the request.",
		message,
	)
}

// ================================================================================
// Verification Error Constructors
// ================================================================================

// ErrDisabledWorkspace is returned when the key's owning or target workspace
// is disabled or cannot be resolved even by a direct lookup.
func ErrDisabledWorkspace(workspaceID string) APIError {
	return NewError(
		constants.ErrCodeDisabledWorkspace,
		http.StatusForbidden,
		"The workspace this key belongs to is disabled.",
		fmt.Sprintf("workspace %s is disabled", workspaceID),
	).WithMetadata("workspace_id", workspaceID)
}

// ErrInvalidPermissionQuery is returned for a permission query with an invalid shape
func ErrInvalidPermissionQuery(cause error) APIError {
	return NewError(
		constants.ErrCodeInvalidPermissionQuery,
		http.StatusBadRequest,
		"The permission query is malformed.",
		"invalid permission query",
	).WithCause(cause)
}

// ErrMissingRatelimit is returned when a named limit is neither configured nor fully specified
func ErrMissingRatelimit(name string) APIError {
	return NewError(
		constants.ErrCodeMissingRatelimit,
		http.StatusBadRequest,
		fmt.Sprintf("ratelimit %q was requested but does not exist on the key or its identity, and no limit and duration were provided.", name),
		fmt.Sprintf("ratelimit %q not found", name),
	).WithMetadata("ratelimit", name)
}

// ErrFetchFailed is returned when the verification record cannot be loaded after retries
func ErrFetchFailed(cause error) APIError {
	return NewError(
		constants.ErrCodeFetchFailed,
		http.StatusInternalServerError,
		"We were unable to load the key, please try again.",
		"failed to load verification record",
	).WithCause(cause)
}

// ErrUsageLimiter is returned when the remaining-credits store fails
func ErrUsageLimiter(cause error) APIError {
	return NewError(
		constants.ErrCodeUsageLimiter,
		http.StatusInternalServerError,
		"We were unable to deduct usage for this key, please try again.",
		"usage limiter failed",
	).WithCause(cause)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsAPIError finds the first APIError in err's chain
func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// WrapError wraps a generic error into an APIError
func WrapError(err error, code constants.ErrorCode, message string) APIError {
	var httpStatus int

	switch code {
	case constants.ErrCodeInvalidRequest, constants.ErrCodeInvalidPermissionQuery,
		constants.ErrCodeMissingRatelimit:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeUnauthorized:
		httpStatus = http.StatusUnauthorized
	case constants.ErrCodeDisabledWorkspace:
		httpStatus = http.StatusForbidden
	case constants.ErrCodeServiceUnavailable:
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, message, message).WithCause(err)
}

func hasCode(err error, code constants.ErrorCode) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Code() == code
	}
	return false
}

// IsDisabledWorkspace reports whether err is a disabled-workspace error
func IsDisabledWorkspace(err error) bool {
	return hasCode(err, constants.ErrCodeDisabledWorkspace)
}

// IsInvalidPermissionQuery reports whether err is a permission query schema error
func IsInvalidPermissionQuery(err error) bool {
	return hasCode(err, constants.ErrCodeInvalidPermissionQuery)
}

// IsMissingRatelimit reports whether err names an unresolvable rate limit
func IsMissingRatelimit(err error) bool {
	return hasCode(err, constants.ErrCodeMissingRatelimit)
}

// IsServerError reports whether err maps to a 5xx status. Unknown errors count as server errors.
func IsServerError(err error) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.HTTPStatus() >= http.StatusInternalServerError
	}
	return err != nil
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	RequestID        string                 `json:"request_id,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts an APIError to an ErrorResponse.
// Only the description and metadata are exposed; the cause never is.
func ToErrorResponse(err APIError) *ErrorResponse {
	resp := &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
	}
	if err.HTTPStatus() < http.StatusInternalServerError && len(err.Metadata()) > 0 {
		resp.Metadata = err.Metadata()
	}
	return resp
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) *ErrorResponse {
	if apiErr, ok := AsAPIError(err); ok {
		return ToErrorResponse(apiErr)
	}

	return &ErrorResponse{
		Error:            string(constants.ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}
