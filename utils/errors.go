package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceErrorWithCause creates a service error that wraps another error
func NewServiceErrorWithCause(code, message string, cause error) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// IsServiceError checks if an error is a service error
func IsServiceError(err error) bool {
	var serviceErr ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error
func GetServiceError(err error) (ServiceError, bool) {
	var serviceErr ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return ServiceError{}, false
}

// Common service error constructors
func NewUnauthorizedError(message string) error {
	return ServiceError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) error {
	return ServiceError{
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewBadRequestError(message string) error {
	return ServiceError{
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) error {
	return ServiceError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string) error {
	return ServiceError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewConfigurationError signals missing provider credentials or similar
// operator mistakes. Fatal at startup/first use, never retried.
func NewConfigurationError(message string) error {
	return ServiceError{
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewRateLimitError(message string) error {
	return ServiceError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewTripNotFoundError() error {
	return NewNotFoundError("Trip")
}

func NewRecipientNotFoundError() error {
	return NewNotFoundError("Recipient")
}

func NewDispatchServiceError(message string) error {
	return NewServiceError("DISPATCH_SERVICE_ERROR", message)
}

// Error handling helpers
func WrapError(err error, code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StatusCode: http.StatusInternalServerError,
	}
}

func WrapDatabaseError(err error, operation string) error {
	return NewDatabaseError(operation, err)
}

// Error code constants
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeAuthentication  = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization   = "AUTHORIZATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeDatabase        = "DATABASE_ERROR"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeDispatchService = "DISPATCH_SERVICE_ERROR"
)

// DeliveryError is a classified failure from a channel sender. Permanent
// errors (invalid address, unregistered token, hard bounce codes) must not
// be retried; transient errors (timeouts, 5xx, throttling) are eligible
// for the backoff schedule.
type DeliveryError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Permanent bool   `json:"permanent"`
	Cause     error  `json:"-"`
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery error [%s]: %s", kind, e.Code, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// NewPermanentDeliveryError creates a non-retryable delivery error
func NewPermanentDeliveryError(code, message string, cause error) *DeliveryError {
	return &DeliveryError{
		Code:      code,
		Message:   message,
		Permanent: true,
		Cause:     cause,
	}
}

// NewTransientDeliveryError creates a retryable delivery error
func NewTransientDeliveryError(code, message string, cause error) *DeliveryError {
	return &DeliveryError{
		Code:      code,
		Message:   message,
		Permanent: false,
		Cause:     cause,
	}
}

// IsPermanentDeliveryError reports whether err is classified permanent.
// Unclassified errors count as transient so they stay retry-eligible.
func IsPermanentDeliveryError(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Permanent
	}
	return false
}

// GetDeliveryError extracts a DeliveryError from an error chain
func GetDeliveryError(err error) (*DeliveryError, bool) {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr, true
	}
	return nil, false
}

// Delivery error code constants shared by the channel senders
const (
	DeliveryErrCodeUnregisteredToken = "UNREGISTERED_TOKEN"
	DeliveryErrCodeInvalidToken      = "INVALID_TOKEN"
	DeliveryErrCodeMailboxNotFound   = "MAILBOX_NOT_FOUND"
	DeliveryErrCodeInvalidNumber     = "INVALID_NUMBER"
	DeliveryErrCodeOptedOut          = "OPTED_OUT"
	DeliveryErrCodeThrottled         = "THROTTLED"
	DeliveryErrCodeProviderError     = "PROVIDER_ERROR"
	DeliveryErrCodeTimeout           = "TIMEOUT"
)
