package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) Checker {
	return func(context.Context) error { return errors.New(msg) }
}

func serveReady(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("postgres", failing("down"))

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name        string
		critical    map[string]Checker
		nonCritical map[string]Checker
		wantCode    int
		wantStatus  Status
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name:        "all up",
			critical:    map[string]Checker{"postgres": ok},
			nonCritical: map[string]Checker{"kafka": ok, "drafts": ok},
			wantCode:    http.StatusOK,
			wantStatus:  StatusUp,
		},
		{
			name:        "non-critical down degrades",
			critical:    map[string]Checker{"postgres": ok},
			nonCritical: map[string]Checker{"kafka": failing("broker unreachable")},
			wantCode:    http.StatusOK,
			wantStatus:  StatusDegraded,
		},
		{
			name:        "critical down",
			critical:    map[string]Checker{"redis": failing("connection refused")},
			nonCritical: map[string]Checker{"kafka": ok},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
		{
			name:        "critical and non-critical down",
			critical:    map[string]Checker{"postgres": failing("db down")},
			nonCritical: map[string]Checker{"rag": failing("rag down")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			for name, c := range tt.critical {
				h.RegisterCritical(name, c)
			}
			for name, c := range tt.nonCritical {
				h.RegisterNonCritical(name, c)
			}

			code, resp := serveReady(t, h)

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.critical)+len(tt.nonCritical))
			for name := range tt.critical {
				assert.True(t, resp.Checks[name].Critical, name)
			}
			for name := range tt.nonCritical {
				assert.False(t, resp.Checks[name].Critical, name)
			}
		})
	}
}

func TestReadiness_ReportsCheckError(t *testing.T) {
	h := NewHandler()
	h.RegisterNonCritical("kafka", failing("broker unreachable"))

	_, resp := serveReady(t, h)

	assert.Equal(t, StatusDown, resp.Checks["kafka"].Status)
	assert.Equal(t, "broker unreachable", resp.Checks["kafka"].Error)
	assert.NotEmpty(t, resp.Checks["kafka"].Latency)
}

func TestRegister_IsCriticalByDefault(t *testing.T) {
	h := NewHandler()
	h.Register("db", failing("fail"))

	code, resp := serveReady(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, resp.Checks["db"].Critical)
}

func TestRegister_Overwrite(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("db", failing("fail"))
	h.RegisterCritical("db", ok)

	code, resp := serveReady(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Checks["db"].Status)
}

func TestCheck_HonoursTimeout(t *testing.T) {
	h := NewHandler()
	h.timeout = 20 * time.Millisecond
	h.RegisterCritical("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Check(context.Background())

	assert.Equal(t, StatusDown, resp.Status)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
}
