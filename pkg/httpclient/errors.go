package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// downstreamErrorResponse mirrors the error envelope written by pkg/httputil.
type downstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ResponseError reads a non-2xx response and turns it into an error. A body
// in the standard error envelope keeps its code and message; anything else is
// reported with its status and a truncated body. The body is closed.
func ResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	var downstream downstreamErrorResponse
	if json.Unmarshal(body, &downstream) == nil && downstream.Error != nil {
		return &apperrors.AppError{
			Code:    downstream.Error.Code,
			Message: fmt.Sprintf("%s: %s", service, downstream.Error.Message),
			Status:  resp.StatusCode,
			Err:     sentinelFor(resp.StatusCode),
		}
	}
	return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, truncate(string(body), 256))
}

func sentinelFor(status int) error {
	switch {
	case status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case status == http.StatusBadRequest:
		return apperrors.ErrInvalidInput
	case status == http.StatusConflict:
		return apperrors.ErrConflict
	case status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case status == http.StatusForbidden:
		return apperrors.ErrForbidden
	case status == http.StatusServiceUnavailable:
		return apperrors.ErrServiceUnavail
	case status >= 500:
		return apperrors.ErrInternal
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
