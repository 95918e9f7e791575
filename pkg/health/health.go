package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
)

// DefaultTimeout bounds a full readiness evaluation.
const DefaultTimeout = 5 * time.Second

// Checker is a function that checks the health of a dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Response is the JSON response returned by the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency"`
	Error    string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler provides HTTP liveness and readiness endpoints. A failing critical
// dependency makes the service unready (503); a failing non-critical one only
// degrades the reported status.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
	now      func() time.Time
}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{
		checkers: make(map[string]registration),
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
}

// RegisterCritical adds a dependency the service cannot serve without.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterNonCritical adds a dependency whose failure only degrades the service.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, checker, false)
}

// Register adds a critical dependency.
func (h *Handler) Register(name string, checker Checker) {
	h.register(name, checker, true)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = registration{check: checker, critical: critical}
}

// LivenessHandler reports 200 as long as the process is serving requests.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{
			Status:    StatusUp,
			Timestamp: h.now().UTC(),
		})
	}
}

// ReadinessHandler runs every registered check concurrently and returns 200 or 503.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())

		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Check evaluates all registered dependencies.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	regs := make(map[string]registration, len(h.checkers))
	for k, v := range h.checkers {
		regs[k] = v
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		g      errgroup.Group
		checks = make(map[string]CheckResult, len(regs))
	)
	for name, reg := range regs {
		g.Go(func() error {
			start := time.Now()
			err := reg.check(ctx)
			res := CheckResult{Status: StatusUp, Critical: reg.critical, Latency: time.Since(start).String()}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	for _, c := range checks {
		if c.Status != StatusDown {
			continue
		}
		if c.Critical {
			overall = StatusDown
			break
		}
		overall = StatusDegraded
	}

	return Response{Status: overall, Timestamp: h.now().UTC(), Checks: checks}
}
