package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tan-res-space/draft-genie-sub004/pkg/health"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
	pkgmiddleware "github.com/tan-res-space/draft-genie-sub004/pkg/middleware"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/config"
	gwmiddleware "github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/middleware"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/proxy"
)

// serviceName labels gateway metrics and spans.
const serviceName = "gateway"

// Deps are the components the router dispatches to.
type Deps struct {
	Auth          *AuthHandler
	Authenticator gwmiddleware.Authenticator
	Proxy         *proxy.ServiceProxy
	Health        *health.Handler
	Metrics       http.Handler
}

// proxiedPrefixes maps API path prefixes to backend services.
var proxiedPrefixes = []struct {
	prefix  string
	service string
}{
	{prefix: "/api/v1/speakers", service: "speaker"},
	{prefix: "/api/v1/drafts", service: "draft"},
	{prefix: "/api/v1/evaluations", service: "evaluation"},
	{prefix: "/api/v1/rag", service: "rag"},
}

// NewRouter creates a chi router with global middleware, health and metrics
// endpoints, the auth API, and proxy routes to the backend services. Rate
// limiter cleanup stops when ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(pkgmiddleware.CORS(pkgmiddleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ExposedHeaders: []string{pkgmiddleware.HeaderCorrelationID, "Retry-After"},
		MaxAge:         cfg.CORSMaxAge,
		Environment:    cfg.Environment,
	}))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.Tracing(serviceName))
	r.Use(pkgmiddleware.PrometheusMetrics(serviceName))
	r.Use(pkgmiddleware.RequestLogger(logger))
	r.Use(gwmiddleware.RateLimit(ctx, "global", cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.ProxyTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	// Health check endpoints (no auth required).
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsIPAllowlist(cfg.MetricsAllowedCIDRs, logger)(metrics))

	authLimit := gwmiddleware.RateLimit(ctx, "auth", cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst, logger)
	jsonOnly := chimw.AllowContentType("application/json")

	r.Group(func(r chi.Router) {
		r.Use(gwmiddleware.Auth(deps.Authenticator, logger))

		r.Route("/api/v1/auth", func(r chi.Router) {
			r.With(authLimit, jsonOnly).Post("/register", deps.Auth.Register)
			r.With(authLimit, jsonOnly).Post("/login", deps.Auth.Login)
			r.With(authLimit, jsonOnly).Post("/refresh", deps.Auth.Refresh)
			r.With(jsonOnly).Post("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Auth.Me)
		})

		r.With(requireService, jsonOnly).Post("/internal/v1/sessions/validate", deps.Auth.ValidateSession)

		for _, p := range proxiedPrefixes {
			h := deps.Proxy.Handler(p.service)
			r.Handle(p.prefix, h)
			r.Handle(p.prefix+"/*", h)
		}
	})

	return r
}

// metricsIPAllowlist returns middleware that restricts access to requests
// from IPs within the configured CIDR ranges.
func metricsIPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("invalid metrics CIDR, skipping", slog.String("cidr", cidr), slog.String("error", err.Error()))
			continue
		}
		nets = append(nets, ipNet)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !ipAllowed(net.ParseIP(host), nets) {
				logger.WarnContext(r.Context(), "metrics access denied", slog.String("ip", host))
				httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "metrics endpoint is restricted")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ipAllowed(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
