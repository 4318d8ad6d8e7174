package models

import "time"

// ErrorResponse represents a standardized error response structure
type ErrorResponse struct {
	// Error represents the error type or category
	Error string `json:"error" example:"RATE_LIMIT_EXCEEDED"`

	// Message provides a human-readable description of the error
	Message string `json:"message" example:"Rate limit exceeded. Please try again later."`

	// Code represents the HTTP or application-specific error code
	Code string `json:"code" example:"TOO_MANY_REQUESTS"`

	// RequestID is a unique identifier for tracking the request
	RequestID string `json:"request_id" example:"req_123456789"`

	// Details contains additional context-specific information about the error
	Details map[string]interface{} `json:"details,omitempty"`

	// Timestamp indicates when the error occurred
	Timestamp time.Time `json:"timestamp" example:"2026-01-15T10:30:00Z"`
}

// NewErrorResponse creates a new ErrorResponse with the current timestamp
func NewErrorResponse(errorType, message, code, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Error:     errorType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// WithDetails adds additional details to the error response
func (e *ErrorResponse) WithDetails(key string, value interface{}) *ErrorResponse {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
