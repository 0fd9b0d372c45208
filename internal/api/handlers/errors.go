package handlers

import (
	"net/http"

	"example.com/backstage/dairy/internal/backend"
	"example.com/backstage/dairy/internal/models"
	"example.com/backstage/dairy/internal/repository"
	"example.com/backstage/dairy/internal/services"
	"example.com/backstage/dairy/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error represents an API error
type Error struct {
	Message    string
	StatusCode int
	Code       string
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest     = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrUnauthorized       = &Error{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrServiceUnavailable = &Error{Message: "Backend not configured", StatusCode: http.StatusServiceUnavailable, Code: "NOT_CONFIGURED"}
)

// NewValidationError creates a new validation error with a custom message
func NewValidationError(message string) *Error {
	return &Error{
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Code:       "VALIDATION_ERROR",
	}
}

// classify maps a service error onto an API error
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validationErrs validator.ValidationErrors
	var shapeErr *models.ShapeError
	var backendErr *backend.Error

	switch {
	case errors.As(err, &shapeErr):
		return &Error{Message: err.Error(), StatusCode: http.StatusBadGateway, Code: "UNEXPECTED_PAYLOAD"}
	case errors.As(err, &validationErrs):
		return NewValidationError(err.Error())
	case errors.Is(err, session.ErrInvalidCredentials):
		return &Error{Message: "Invalid credentials", StatusCode: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS"}
	case errors.Is(err, session.ErrNotSignedIn):
		return ErrUnauthorized
	case errors.Is(err, backend.ErrNotConfigured):
		return ErrServiceUnavailable
	case errors.Is(err, backend.ErrNotSupported):
		return &Error{Message: err.Error(), StatusCode: http.StatusNotImplemented, Code: "NOT_SUPPORTED"}
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, services.ErrTripNotFound):
		return &Error{Message: err.Error(), StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	case errors.Is(err, services.ErrInvalidTransition):
		return &Error{Message: err.Error(), StatusCode: http.StatusConflict, Code: "INVALID_TRANSITION"}
	case backend.IsPermissionDenied(err):
		return &Error{Message: err.Error(), StatusCode: http.StatusForbidden, Code: "FORBIDDEN"}
	case backend.IsUniqueViolation(err):
		return &Error{Message: err.Error(), StatusCode: http.StatusConflict, Code: "CONFLICT"}
	case errors.As(err, &backendErr):
		return &Error{Message: err.Error(), StatusCode: http.StatusBadGateway, Code: "BACKEND_ERROR"}
	}
	return nil
}

// writeError writes an error response
func writeError(c *gin.Context, err error) {
	if apiErr := classify(err); apiErr != nil {
		c.AbortWithStatusJSON(apiErr.StatusCode, ErrorResponse{
			Message: apiErr.Message,
			Code:    apiErr.Code,
		})
		return
	}

	// Log unknown errors
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Message: "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
