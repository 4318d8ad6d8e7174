package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"tripwire/models"
)

type ValidationService struct {
	validator *validator.Validate
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom validators
	v.RegisterValidation("phone", validatePhone)
	v.RegisterValidation("notification_category", validateNotificationCategory)
	v.RegisterValidation("notification_priority", validateNotificationPriority)
	v.RegisterValidation("clock_time", validateClockTime)

	return &ValidationService{
		validator: v,
	}
}

func (vs *ValidationService) ValidateStruct(s interface{}) []ValidationError {
	var validationErrors []ValidationError

	err := vs.validator.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, ValidationError{
				Field:   err.Field(),
				Tag:     err.Tag(),
				Value:   fmt.Sprintf("%v", err.Value()),
				Message: vs.getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

func (vs *ValidationService) getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Invalid email format"
	case "phone":
		return "Invalid phone number format"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "notification_category":
		return "Invalid notification category"
	case "notification_priority":
		return "Invalid notification priority"
	case "clock_time":
		return "Invalid time format, expected HH:MM"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// Custom validation functions
func validatePhone(fl validator.FieldLevel) bool {
	phone := fl.Field().String()
	// Remove all non-digit characters
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")

	// Check if it's a valid length (10-15 digits)
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}

	// Basic E.164 pattern
	phoneRegex := regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	return phoneRegex.MatchString(phone)
}

func validateNotificationCategory(fl validator.FieldLevel) bool {
	return models.IsValidCategory(fl.Field().String())
}

func validateNotificationPriority(fl validator.FieldLevel) bool {
	priority := fl.Field().String()
	validPriorities := []string{
		models.PriorityLow,
		models.PriorityNormal,
		models.PriorityHigh,
		models.PriorityUrgent,
	}

	for _, validPriority := range validPriorities {
		if priority == validPriority {
			return true
		}
	}
	return false
}

func validateClockTime(fl validator.FieldLevel) bool {
	return ValidateTimeFormat(fl.Field().String())
}

// Additional validation helpers
func ValidateEmail(email string) error {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidateE164 validates an international phone number in E.164 format
func ValidateE164(phone string) error {
	if phone == "" {
		return errors.New("phone number cannot be empty")
	}

	if !strings.HasPrefix(phone, "+") {
		return errors.New("phone number must be in international format (+1234567890)")
	}

	matched, _ := regexp.MatchString(`^\+[1-9]\d{9,14}$`, phone)
	if !matched {
		return errors.New("invalid phone number")
	}
	return nil
}

// ValidateTimeFormat validates time format (HH:MM)
func ValidateTimeFormat(timeStr string) bool {
	matched, _ := regexp.MatchString("^([01]?[0-9]|2[0-3]):[0-5][0-9]$", timeStr)
	return matched
}

func SanitizeInput(input string) string {
	// Remove any potentially dangerous characters
	input = strings.TrimSpace(input)
	input = regexp.MustCompile(`[<>\"';&]`).ReplaceAllString(input, "")
	return input
}
