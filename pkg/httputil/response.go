package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
	"github.com/tan-res-space/draft-genie-sub004/pkg/validator"
)

// Response is the standard JSON response envelope used by every service.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the standard envelope.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteErrorCode writes an error envelope with an explicit code and message.
func WriteErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, Response{
		Error: &ErrorResponse{
			Code:      code,
			Message:   message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}

// WriteError maps err onto the standard error envelope. AppErrors keep their
// code and message. Bare sentinels get a generic message, and anything that
// resolves to a 500 is logged with the request-scoped logger when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		WriteErrorCode(w, r, appErr.Status, appErr.Code, appErr.Message)
		return
	}

	status := apperrors.HTTPStatus(err)
	code, message := "INTERNAL_ERROR", "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code, message = "ALREADY_EXISTS", "resource already exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		code, message = "INVALID_CREDENTIALS", "invalid email or password"
	case errors.Is(err, apperrors.ErrTokenExpired):
		code, message = "TOKEN_EXPIRED", "token has expired"
	case errors.Is(err, apperrors.ErrInvalidToken):
		code, message = "INVALID_TOKEN", "invalid or revoked token"
	case errors.Is(err, apperrors.ErrUnauthorized):
		code, message = "UNAUTHORIZED", "authentication required"
	case errors.Is(err, apperrors.ErrForbidden):
		code, message = "FORBIDDEN", "access denied"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		code, message = "SERVICE_UNAVAILABLE", "service temporarily unavailable"
	default:
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logInternal(l, r, err)
	}

	WriteErrorCode(w, r, status, code, message)
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// WriteValidationError writes a 400 for request decoding and validation
// failures, with field-level detail when the validator produced it. Oversized
// bodies are reported as 413.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		WriteErrorCode(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
		return
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   "request validation failed",
				Fields:    valErr.Fields(),
				RequestID: logger.CorrelationIDFromContext(r.Context()),
			},
		})
		return
	}

	WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
}
