package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels classify failures independently of how they are reported.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal error")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavail     = errors.New("service unavailable")
)

// AppError is an error with the code, message and HTTP status it is rendered
// with. Err is the sentinel or cause it wraps.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(status int, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// NotFound reports a missing resource (404).
func NotFound(resource, id string) *AppError {
	return newAppError(http.StatusNotFound, "NOT_FOUND",
		fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

// AlreadyExists reports a uniqueness conflict (409).
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(http.StatusConflict, "ALREADY_EXISTS",
		fmt.Sprintf("%s with %s %q already exists", resource, field, value), ErrAlreadyExists)
}

// InvalidInput reports a malformed request (400).
func InvalidInput(message string) *AppError {
	return newAppError(http.StatusBadRequest, "INVALID_INPUT", message, ErrInvalidInput)
}

// InvalidCredentials reports a failed email/password check (401). The
// message is the same for an unknown email and a wrong password.
func InvalidCredentials() *AppError {
	return newAppError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", ErrInvalidCredentials)
}

// InvalidToken reports a token that is unknown, already consumed or fails
// verification (401).
func InvalidToken() *AppError {
	return newAppError(http.StatusUnauthorized, "INVALID_TOKEN", "invalid or revoked token", ErrInvalidToken)
}

// TokenExpired reports an access token past its lifetime (401).
func TokenExpired() *AppError {
	return newAppError(http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired", ErrTokenExpired)
}

// Unauthorized reports missing or unusable credentials (401).
func Unauthorized(message string) *AppError {
	return newAppError(http.StatusUnauthorized, "UNAUTHORIZED", message, ErrUnauthorized)
}

// Forbidden reports an authenticated caller without access (403).
func Forbidden(message string) *AppError {
	return newAppError(http.StatusForbidden, "FORBIDDEN", message, ErrForbidden)
}

// Internal hides err behind a generic 500. err is kept for logging.
func Internal(err error) *AppError {
	return newAppError(http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", err)
}

// Wrap adds context to err, keeping it matchable with errors.Is.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps err to a response status. AppErrors carry their own;
// wrapped sentinels are classified; everything else is a 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
