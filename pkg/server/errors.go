package server

import (
	"fmt"
)

// APIError is an error with an associated HTTP status. Handlers return it to
// control the status code; anything else maps to a 500.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.StatusCode, e.Message)
}

func NewNotFoundError(format string, args ...any) *APIError {
	return &APIError{StatusCode: 404, Name: "NotFoundError", Message: fmt.Sprintf(format, args...)}
}

func NewBadRequestError(format string, args ...any) *APIError {
	return &APIError{StatusCode: 400, Name: "BadRequestError", Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(format string, args ...any) *APIError {
	return &APIError{StatusCode: 500, Name: "InternalError", Message: fmt.Sprintf(format, args...)}
}
