package proxy

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	pkghttputil "github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/config"
)

// ServiceProxy manages reverse proxies to backend services.
type ServiceProxy struct {
	routes map[string]*httputil.ReverseProxy
	logger *slog.Logger
}

// NewServiceProxy creates a reverse proxy for each backend service in cfg.
// Services with an unparsable URL are logged and left unregistered.
func NewServiceProxy(cfg *config.Config, logger *slog.Logger) *ServiceProxy {
	sp := &ServiceProxy{
		routes: make(map[string]*httputil.ReverseProxy),
		logger: logger,
	}

	transport := newTransport(cfg.ProxyTimeout)

	for name, rawURL := range cfg.ServiceURLs() {
		target, err := url.Parse(rawURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			logger.Error("invalid service URL",
				slog.String("service", name),
				slog.String("url", rawURL),
				slog.Any("error", err),
			)
			continue
		}

		sp.routes[name] = &httputil.ReverseProxy{
			Rewrite:      rewrite(target),
			Transport:    transport,
			ErrorHandler: sp.errorHandler(name),
		}

		logger.Info("registered service proxy",
			slog.String("service", name),
			slog.String("target", rawURL),
		)
	}

	return sp
}

func newTransport(responseTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = responseTimeout
	t.MaxIdleConnsPerHost = 100
	return t
}

// rewrite routes the request to target, sets X-Forwarded-* and propagates
// the trace context to the backend.
func rewrite(target *url.URL) func(*httputil.ProxyRequest) {
	return func(pr *httputil.ProxyRequest) {
		pr.SetURL(target)
		pr.SetXForwarded()
		otel.GetTextMapPropagator().Inject(pr.Out.Context(), propagation.HeaderCarrier(pr.Out.Header))
	}
}

// Handler returns an http.Handler that proxies requests to the named backend service.
func (sp *ServiceProxy) Handler(serviceName string) http.Handler {
	proxy, ok := sp.routes[serviceName]
	if !ok {
		sp.logger.Error("no proxy registered for service", slog.String("service", serviceName))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkghttputil.WriteErrorCode(w, r, http.StatusBadGateway, "SERVICE_UNAVAILABLE", "service not configured")
		})
	}
	return proxy
}

// Services returns the names of the registered services in sorted order.
func (sp *ServiceProxy) Services() []string {
	names := make([]string, 0, len(sp.routes))
	for name := range sp.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// errorHandler logs transport failures and answers 504 for timeouts and 502
// for everything else.
func (sp *ServiceProxy) errorHandler(serviceName string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		sp.logger.ErrorContext(r.Context(), "proxy error",
			slog.String("service", serviceName),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			pkghttputil.WriteErrorCode(w, r, http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", "upstream service timed out")
			return
		}
		pkghttputil.WriteErrorCode(w, r, http.StatusBadGateway, "BAD_GATEWAY", "upstream service unavailable")
	}
}
