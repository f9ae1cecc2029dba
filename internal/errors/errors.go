package errors

import (
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError is the application error carried across layer boundaries.
// UserMessage and HTTPStatus define what the API client sees; Message is
// for logs only and may contain internal detail.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	HTTPStatus  int
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewAuthError reports a failed initData signature check.
func NewAuthError() *AppError {
	return &AppError{
		Code:        "E100",
		Message:     "telegram init data validation failed",
		UserMessage: "Invalid Telegram data",
		HTTPStatus:  http.StatusForbidden,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewNotFoundError covers missing users and missing current mazes.
func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:        "E110",
		Message:     fmt.Sprintf("%s not found", what),
		UserMessage: "Maze not found",
		HTTPStatus:  http.StatusBadRequest,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewInvalidInputError reports a malformed or out-of-range request value.
func NewInvalidInputError(msg string) *AppError {
	return &AppError{
		Code:        "E120",
		Message:     msg,
		UserMessage: msg,
		HTTPStatus:  http.StatusBadRequest,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewAlreadyCompletedError reports an attempt to re-finish a passed maze.
func NewAlreadyCompletedError() *AppError {
	return &AppError{
		Code:        "E130",
		Message:     "maze already passed",
		UserMessage: "Maze already passed",
		HTTPStatus:  http.StatusBadRequest,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewCheatError reports a completion faster than the anti-cheat baseline.
func NewCheatError() *AppError {
	return &AppError{
		Code:        "E140",
		Message:     "cheat detected: completion below minimum time",
		UserMessage: "Cheating detected. User is blocked.",
		HTTPStatus:  http.StatusForbidden,
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

// NewBlockedError reports that the user is still serving a block.
func NewBlockedError() *AppError {
	return &AppError{
		Code:        "E141",
		Message:     "user is blocked",
		UserMessage: "User is blocked",
		HTTPStatus:  http.StatusForbidden,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewConflictError signals a lost conditional transactional write. The
// controller recovers it locally; it never reaches the API client.
func NewConflictError(msg string) *AppError {
	return &AppError{
		Code:        "E200",
		Message:     msg,
		UserMessage: "Internal Server Error",
		HTTPStatus:  http.StatusInternalServerError,
		Severity:    SeverityMedium,
		Retryable:   true,
	}
}

// NewDatabaseError wraps an unclassified store failure.
func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E210",
		Message:     fmt.Sprintf("database error: %s", underlyingMsg),
		UserMessage: "Internal Server Error",
		HTTPStatus:  http.StatusInternalServerError,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}
