package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Custom error types for the application
var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnauthorized           = errors.New("unauthorized access")
	ErrBadRequest             = errors.New("invalid request")
	ErrInternalServer         = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrWeakPassword           = errors.New("password does not meet strength requirements")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrSameAsCurrentPassword  = errors.New("new password must differ from the current password")
	ErrHashing                = errors.New("password hashing failed")
	ErrVersionConflict        = errors.New("record was modified concurrently")
)

// AppError represents an application error with additional context
type AppError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly error message
	DevInfo    string // Additional information for developers
	Field      string // Field related to the error (for validation errors)
	Details    map[string]any
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given error and status code
func New(err error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a new validation error for a specific field
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Field:      field,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resourceType string, identifier interface{}) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		StatusCode: http.StatusNotFound,
		Message:    fmt.Sprintf("%s with identifier '%v' not found", resourceType, identifier),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return &AppError{
		Err:        ErrUnauthorized,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        ErrInternalServer,
		StatusCode: http.StatusInternalServerError,
		Message:    "An internal server error occurred",
		DevInfo:    devInfo,
	}
}

// NewInvalidCredentialsError creates a new invalid credentials error
func NewInvalidCredentialsError() *AppError {
	return &AppError{
		Err:        ErrInvalidCredentials,
		StatusCode: http.StatusUnauthorized,
		Message:    "Invalid email or password",
	}
}

// NewInvalidOrExpiredTokenError creates the single error returned for any
// token that does not validate: unknown, expired, or already used.
func NewInvalidOrExpiredTokenError() *AppError {
	return &AppError{
		Err:        ErrInvalidOrExpiredToken,
		StatusCode: http.StatusBadRequest,
		Message:    "Invalid or expired password reset token",
	}
}

// NewWeakPasswordError creates a weak password error carrying the failed
// rule names so the client can show specific feedback.
func NewWeakPasswordError(failedRules []string, score int) *AppError {
	return &AppError{
		Err:        ErrWeakPassword,
		StatusCode: http.StatusBadRequest,
		Message:    "Password does not meet strength requirements",
		Details: map[string]any{
			"failed_rules": failedRules,
			"score":        score,
		},
	}
}

// NewInvalidCurrentPasswordError creates an error for a change-password
// request whose current password did not verify.
func NewInvalidCurrentPasswordError() *AppError {
	return &AppError{
		Err:        ErrInvalidCurrentPassword,
		StatusCode: http.StatusUnauthorized,
		Message:    "Current password is incorrect",
	}
}

// NewSameAsCurrentPasswordError creates an error for a change-password
// request that reuses the current password.
func NewSameAsCurrentPasswordError() *AppError {
	return &AppError{
		Err:        ErrSameAsCurrentPassword,
		StatusCode: http.StatusBadRequest,
		Message:    "New password must be different from the current password",
	}
}

// NewHashingError wraps a fatal hashing failure. This never falls back to
// an unsafe path; the request fails.
func NewHashingError(err error) *AppError {
	return &AppError{
		Err:        ErrHashing,
		StatusCode: http.StatusInternalServerError,
		Message:    "Unable to process password",
		DevInfo:    err.Error(),
	}
}

// ParseError attempts to parse various types of errors into an AppError
func ParseError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError("Resource", "")
	case errors.Is(err, ErrUnauthorized):
		return NewUnauthorizedError("")
	case errors.Is(err, ErrBadRequest):
		return NewBadRequestError(err.Error())
	case errors.Is(err, ErrValidation):
		return NewValidationError("", err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return NewInvalidCredentialsError()
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrVersionConflict):
		// A version conflict on the reset path means another consumer won
		// the race; the caller's token is spent.
		return NewInvalidOrExpiredTokenError()
	case errors.Is(err, ErrWeakPassword):
		return NewWeakPasswordError(nil, 0)
	case errors.Is(err, ErrInvalidCurrentPassword):
		return NewInvalidCurrentPasswordError()
	case errors.Is(err, ErrSameAsCurrentPassword):
		return NewSameAsCurrentPasswordError()
	case errors.Is(err, ErrHashing):
		return NewHashingError(err)
	}

	// MySQL driver errors
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062: // ER_DUP_ENTRY
			return &AppError{
				Err:        ErrBadRequest,
				StatusCode: http.StatusConflict,
				Message:    "A resource with the same unique identifier already exists",
				DevInfo:    mysqlErr.Error(),
			}
		case 1452: // ER_NO_REFERENCED_ROW_2
			return &AppError{
				Err:        ErrBadRequest,
				StatusCode: http.StatusBadRequest,
				Message:    "This operation violates a foreign key constraint",
				DevInfo:    mysqlErr.Error(),
			}
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "no rows") {
		return &AppError{
			Err:        ErrNotFound,
			StatusCode: http.StatusNotFound,
			Message:    "The requested resource could not be found",
			DevInfo:    err.Error(),
		}
	}

	return NewInternalServerError(err)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode == http.StatusNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// IsVersionConflict checks if an error is an optimistic concurrency conflict
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return errors.Is(appErr.Err, ErrValidation)
	}
	return errors.Is(err, ErrValidation)
}

// StatusCode returns the HTTP status code for an error
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
