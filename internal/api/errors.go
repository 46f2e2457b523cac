package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/auth"
	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/ratelimit"
	"github.com/phrazzld/stockroom/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, part.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, task.ErrConflict),
		errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, task.ErrConfiguration),
		errors.Is(err, task.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, ratelimit.ErrExceeded):
		return http.StatusTooManyRequests

	// Saturation
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, ratelimit.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	// Admission rejections are built from request data and registry
	// contents only, so their text is safe to return.
	var cfgErr *task.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}
	var conflictErr *task.ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr.Error()
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"

	case errors.Is(err, task.ErrNotFound):
		return "Task not found"

	case errors.Is(err, part.ErrNotFound):
		return "Part not found"

	case errors.Is(err, task.ErrInvalidTransition):
		return "Task is already finished"

	case errors.Is(err, task.ErrInvalidRequest):
		return strings.TrimPrefix(err.Error(), task.ErrInvalidRequest.Error()+": ")

	case errors.Is(err, task.ErrQueueFull):
		return "Task queue is full, try again later"

	case errors.Is(err, ratelimit.ErrExceeded):
		return "Rate limit exceeded"

	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		return "Rate limiting is temporarily unavailable"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. Server errors
// are logged with the fallback message when one is given. Conflicts name the
// task that blocked admission.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	var opts []shared.ResponseOption
	var conflict *task.ConflictError
	if errors.As(err, &conflict) {
		opts = append(opts, shared.WithExistingTask(conflict.ExistingID))
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'LoginRequest.Username' Error:Field validation for 'Username' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "dive":
		return "invalid item"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
