package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
	"github.com/tan-res-space/draft-genie-sub004/pkg/validator"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func errorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error, rec.Body.String())
	assert.Nil(t, resp.Data)
	return *resp.Error
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteData(rec, http.StatusCreated, map[string]string{"user_id": "u-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"user_id":"u-1"}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"app error", apperrors.InvalidCredentials(), http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"},
		{"wrapped app error", fmt.Errorf("refresh: %w", apperrors.InvalidToken()), http.StatusUnauthorized, "INVALID_TOKEN", "invalid or revoked token"},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
		{"duplicate", apperrors.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
		{"bad input keeps detail", fmt.Errorf("role %q: %w", "owner", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", `role "owner": invalid input`},
		{"expired", apperrors.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "access denied"},
		{"unavailable", apperrors.ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable"},
		{"conflict sentinel is internal", apperrors.ErrConflict, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
		{"unknown hides detail", fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			WriteError(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil), tt.err, quiet)

			assert.Equal(t, tt.wantStatus, rec.Code)
			got := errorEnvelope(t, rec)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}
}

func TestWriteError_LogsInternalOnRequestLogger(t *testing.T) {
	var scopedOut, fallbackOut bytes.Buffer
	ctx := logger.NewContext(context.Background(), slog.New(slog.NewJSONHandler(&scopedOut, nil)))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil).WithContext(ctx)

	WriteError(httptest.NewRecorder(), req, apperrors.Internal(fmt.Errorf("redis: i/o timeout")), slog.New(slog.NewJSONHandler(&fallbackOut, nil)))
	WriteError(httptest.NewRecorder(), req, apperrors.ErrInvalidToken, slog.New(slog.NewJSONHandler(&fallbackOut, nil)))

	assert.Contains(t, scopedOut.String(), "redis: i/o timeout")
	assert.Contains(t, scopedOut.String(), `"path":"/api/v1/auth/me"`)
	assert.NotContains(t, scopedOut.String(), "invalid token")
	assert.Empty(t, fallbackOut.String())
}

func TestWriteErrorCode_RequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-5e1")
	WriteErrorCode(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx), http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
	assert.Equal(t, "corr-5e1", errorEnvelope(t, rec).RequestID)

	rec = httptest.NewRecorder()
	WriteErrorCode(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
	assert.NotContains(t, rec.Body.String(), "request_id")
}

func TestWriteValidationError(t *testing.T) {
	type registerBody struct {
		Email string `json:"email" validate:"required,email"`
	}
	fieldErr := validator.Validate(registerBody{Email: "not-an-email"})
	require.Error(t, fieldErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"field errors", fieldErr, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"oversized body", fmt.Errorf("decode: %w", &http.MaxBytesError{Limit: 1 << 20}), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"malformed json", fmt.Errorf("unexpected EOF"), http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			WriteValidationError(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			got := errorEnvelope(t, rec)
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.wantCode == "VALIDATION_ERROR" {
				assert.Contains(t, got.Fields, "email")
			}
		})
	}
}
