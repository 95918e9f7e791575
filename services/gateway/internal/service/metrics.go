package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
)

// Operation labels for authOperationsTotal.
const (
	opRegister        = "register"
	opLogin           = "login"
	opRefresh         = "refresh"
	opLogout          = "logout"
	opValidateSession = "validate_session"
	opValidateAPIKey  = "validate_api_key"
)

var authOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_auth_operations_total",
		Help: "Total number of auth core operations by outcome",
	},
	[]string{"operation", "outcome"},
)

func observe(operation string, err error) {
	authOperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, apperrors.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
