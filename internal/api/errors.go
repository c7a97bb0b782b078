package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/phrazzld/codescope-api/internal/task"
)

// errInvalidID is returned for path parameters that are not UUIDs.
var errInvalidID = errors.New("invalid identifier")

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, task.ErrNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	case store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, task.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, errInvalidID),
		isValidationError(err),
		isUserValidationError(err):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-safe message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization required"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, task.ErrNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrReportNotFound):
		return "Report not found"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, task.ErrInvalidInput):
		// Input errors describe the caller's own submission
		msg := strings.TrimPrefix(err.Error(), task.ErrInvalidInput.Error()+": ")
		return "Invalid input: " + msg
	case errors.Is(err, errInvalidID):
		return "Invalid identifier"
	case isValidationError(err):
		return SanitizeValidationError(err)
	case isUserValidationError(err):
		return "Invalid user data: " + err.Error()
	case errors.Is(err, domain.ErrValidation):
		if msg, ok := strings.CutPrefix(err.Error(), domain.ErrValidation.Error()+": "); ok {
			return "Validation error: " + msg
		}
		return "Validation error"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message that err maps to. A
// non-empty fallback replaces the message of server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status >= http.StatusInternalServerError && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError turns validator failures into a short message naming
// the first offending field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte", "gt":
		return "too small"
	case "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	case "url":
		return "invalid URL"
	default:
		return "validation failed"
	}
}

func isValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func isUserValidationError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyEmail,
		domain.ErrInvalidEmail,
		domain.ErrEmptyPassword,
		domain.ErrPasswordTooShort,
		domain.ErrPasswordTooLong,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
