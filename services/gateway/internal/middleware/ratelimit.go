package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
)

// visitorTTL is how long an idle client keeps its limiter.
const visitorTTL = 3 * time.Minute

var rateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_rate_limited_requests_total",
		Help: "Total number of requests rejected by a rate limiter",
	},
	[]string{"limiter"},
)

// visitor tracks a rate limiter per client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore manages per-IP rate limiters and evicts idle ones.
type visitorStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	nowFunc  func() time.Time
}

func newVisitorStore(rps, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// getVisitor returns (or creates) the limiter for ip and marks it as seen.
func (s *visitorStore) getVisitor(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	v, ok := s.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// cleanupLoop evicts idle visitors every ttl until ctx is done.
func (s *visitorStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *visitorStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for ip, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.visitors, ip)
		}
	}
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit returns middleware enforcing a per-IP token bucket of rps requests
// per second with the given burst. Rejected requests get 429 with a
// Retry-After header. The eviction goroutine stops when ctx is done.
func RateLimit(ctx context.Context, name string, rps, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	store := newVisitorStore(rps, burst, visitorTTL)
	go store.cleanupLoop(ctx)
	return rateLimit(store, name, logger)
}

func rateLimit(store *visitorStore, name string, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := "1"
	if store.limit > 0 && store.limit < 1 {
		retryAfter = strconv.Itoa(int(1/float64(store.limit) + 0.5))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !store.getVisitor(ip).Allow() {
				rateLimitedTotal.WithLabelValues(name).Inc()
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("limiter", name),
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteErrorCode(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the first address in X-Forwarded-For, then X-Real-IP, then
// the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
