package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the analytics core. Handlers translate these into HTTP
// status codes; everything else maps to 500.
var (
	// ErrQueryNotFound is returned when a query id does not resolve.
	ErrQueryNotFound = errors.New("query not found")

	// ErrDashboardNotFound is returned when a dashboard id does not resolve.
	ErrDashboardNotFound = errors.New("dashboard not found")

	// ErrUnsupportedFormat is returned for export formats outside the
	// supported set (csv, json, excel, pdf).
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ExecutionError wraps the underlying cause of a failed query execution.
// Callers get the generic message; the cause is for logs only.
type ExecutionError struct {
	QueryID string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %s", e.QueryID)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError wraps cause as an execution failure for queryID.
func NewExecutionError(queryID string, cause error) *ExecutionError {
	return &ExecutionError{QueryID: queryID, Cause: cause}
}

// SourceFetchError marks a single data source failure. It is isolated at the
// dashboard layer and never propagates past it.
type SourceFetchError struct {
	SourceID string
	Cause    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source fetch failed: %s: %v", e.SourceID, e.Cause)
}

func (e *SourceFetchError) Unwrap() error { return e.Cause }

// NewSourceFetchError wraps cause as a fetch failure for sourceID.
func NewSourceFetchError(sourceID string, cause error) *SourceFetchError {
	return &SourceFetchError{SourceID: sourceID, Cause: cause}
}

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Common errors
var (
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "Bad request"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// GetStatusCode returns the HTTP status code for an error, mapping the
// analytics sentinels onto their REST semantics.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrQueryNotFound), errors.Is(err, ErrDashboardNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
