package errors

import (
	"errors"
	"fmt"
)

// Custom error types for better error handling
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("username or email already exists")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCsrfToken   = errors.New("invalid csrf token")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrInvalidUsername = errors.New("invalid username format")

	// Storage errors
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrLockTimeout    = errors.New("timed out waiting for table lock")
	ErrStorage        = errors.New("storage operation failed")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("too many login attempts, please try again later")

	// Backup errors
	ErrBackupFailed  = errors.New("backup operation failed")
	ErrRestoreFailed = errors.New("restore operation failed")
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// ValidationError carries every violated rule for a single request so the
// caller can report them field by field.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0]
	}
	return fmt.Sprintf("%d validation errors", len(e.Violations))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a validation error from the collected violations
func NewValidationError(violations []string) *ValidationError {
	return &ValidationError{Violations: violations}
}
