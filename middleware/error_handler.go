package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"tripwire/models"
	"tripwire/utils"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle returns the error handling middleware
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			eh.handleGinErrors(c)
		}
	})
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      string(debug.Stack()),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"user_id":    c.GetString("userID"),
	}).Error("Panic recovered")

	response := models.ErrorResponse{
		Error:     "INTERNAL_ERROR",
		Message:   "Internal server error",
		Code:      "PANIC_RECOVERED",
		RequestID: c.GetString("request_id"),
	}

	if eh.environment == "development" {
		response.Details = map[string]interface{}{
			"panic": err,
			"stack": string(debug.Stack()),
		}
	}

	c.JSON(http.StatusInternalServerError, response)
	c.Abort()
}

func (eh *ErrorHandler) handleGinErrors(c *gin.Context) {
	lastError := c.Errors.Last()
	if lastError == nil {
		return
	}

	for _, ginErr := range c.Errors {
		eh.logError(c, ginErr.Err)
	}

	eh.processError(c, lastError.Err)
}

func (eh *ErrorHandler) logError(c *gin.Context, err error) {
	fields := logrus.Fields{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"user_id":    c.GetString("userID"),
		"ip":         c.ClientIP(),
	}

	if eh.isClientError(err) {
		eh.logger.WithFields(fields).Warn("Client error")
	} else {
		eh.logger.WithFields(fields).Error("Server error")
	}
}

func (eh *ErrorHandler) processError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	switch {
	case eh.isValidationError(err):
		eh.handleValidationError(c, err, requestID)
	case eh.isMongoError(err):
		eh.handleMongoError(c, err, requestID)
	case utils.IsServiceError(err):
		eh.handleServiceError(c, err, requestID)
	default:
		eh.handleGenericError(c, err, requestID)
	}
}

func (eh *ErrorHandler) isValidationError(err error) bool {
	var validationErr validator.ValidationErrors
	return errors.As(err, &validationErr)
}

func (eh *ErrorHandler) isMongoError(err error) bool {
	return mongo.IsDuplicateKeyError(err) ||
		errors.Is(err, mongo.ErrNoDocuments) ||
		mongo.IsTimeout(err) ||
		mongo.IsNetworkError(err)
}

func (eh *ErrorHandler) isClientError(err error) bool {
	if eh.isValidationError(err) || errors.Is(err, mongo.ErrNoDocuments) {
		return true
	}
	if serviceErr, ok := utils.GetServiceError(err); ok {
		return serviceErr.StatusCode >= 400 && serviceErr.StatusCode < 500
	}
	return false
}

func (eh *ErrorHandler) handleValidationError(c *gin.Context, err error, requestID string) {
	var validationErr validator.ValidationErrors
	if !errors.As(err, &validationErr) {
		return
	}

	response := models.ErrorResponse{
		Error:     "VALIDATION_ERROR",
		Message:   "Validation failed",
		Code:      "VALIDATION_FAILED",
		RequestID: requestID,
		Details:   eh.formatValidationErrors(validationErr),
	}
	c.JSON(http.StatusBadRequest, response)
}

func (eh *ErrorHandler) handleMongoError(c *gin.Context, err error, requestID string) {
	switch {
	case mongo.IsDuplicateKeyError(err):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:     "CONFLICT",
			Message:   "Resource already exists",
			Code:      "DUPLICATE_RESOURCE",
			RequestID: requestID,
		})

	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:     "NOT_FOUND",
			Message:   "Resource not found",
			Code:      "RESOURCE_NOT_FOUND",
			RequestID: requestID,
		})

	case mongo.IsTimeout(err):
		c.JSON(http.StatusGatewayTimeout, models.ErrorResponse{
			Error:     "TIMEOUT",
			Message:   "Database operation timed out",
			Code:      "DATABASE_TIMEOUT",
			RequestID: requestID,
		})

	case mongo.IsNetworkError(err):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:     "SERVICE_UNAVAILABLE",
			Message:   "Database connection error",
			Code:      "DATABASE_CONNECTION_ERROR",
			RequestID: requestID,
		})

	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     "INTERNAL_ERROR",
			Message:   "Database error",
			Code:      "DATABASE_ERROR",
			RequestID: requestID,
		})
	}
}

func (eh *ErrorHandler) handleServiceError(c *gin.Context, err error, requestID string) {
	serviceErr, ok := utils.GetServiceError(err)
	if !ok {
		eh.handleGenericError(c, err, requestID)
		return
	}

	statusCode := serviceErr.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	c.JSON(statusCode, models.ErrorResponse{
		Error:     serviceErr.Code,
		Message:   serviceErr.Message,
		Code:      serviceErr.Code,
		RequestID: requestID,
	})
}

func (eh *ErrorHandler) handleGenericError(c *gin.Context, err error, requestID string) {
	response := models.ErrorResponse{
		Error:     "INTERNAL_ERROR",
		Message:   "An unexpected error occurred",
		Code:      "UNKNOWN_ERROR",
		RequestID: requestID,
	}

	if eh.environment == "development" {
		response.Details = map[string]interface{}{
			"original_error": err.Error(),
		}
	}

	c.JSON(http.StatusInternalServerError, response)
}

func (eh *ErrorHandler) formatValidationErrors(validationErrors validator.ValidationErrors) map[string]interface{} {
	fields := make(map[string]interface{})

	for _, err := range validationErrors {
		var message string
		switch err.Tag() {
		case "required":
			message = "This field is required"
		case "email":
			message = "Must be a valid email address"
		case "max":
			message = "Value is too long"
		case "oneof":
			message = "Invalid value"
		case "notification_category":
			message = "Unknown notification category"
		case "notification_priority":
			message = "Unknown priority level"
		case "clock_time":
			message = "Must be HH:MM"
		default:
			message = "Invalid value"
		}

		fields[err.Field()] = map[string]interface{}{
			"message": message,
			"tag":     err.Tag(),
		}
	}

	return map[string]interface{}{
		"fields": fields,
	}
}

// AbortWithError aborts the request with an error response
func AbortWithError(c *gin.Context, statusCode int, errorType, message, code string) {
	c.JSON(statusCode, models.ErrorResponse{
		Error:     errorType,
		Message:   message,
		Code:      code,
		RequestID: c.GetString("request_id"),
	})
	c.Abort()
}
