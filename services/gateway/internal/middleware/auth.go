package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/tan-res-space/draft-genie-sub004/pkg/errors"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httputil"
	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
	pkgmw "github.com/tan-res-space/draft-genie-sub004/pkg/middleware"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/domain"
)

// Authenticator validates the credentials a request presents.
type Authenticator interface {
	ValidateSession(ctx context.Context, accessToken string) (*domain.Identity, error)
	ValidateAPIKey(key string) bool
}

// publicRoutes are reachable without credentials. Paths match exactly.
var publicRoutes = []struct {
	method string
	path   string
}{
	{method: http.MethodPost, path: "/api/v1/auth/register"},
	{method: http.MethodPost, path: "/api/v1/auth/login"},
	{method: http.MethodPost, path: "/api/v1/auth/refresh"},
	{method: http.MethodPost, path: "/api/v1/auth/logout"},
}

// isPublicRoute checks whether a given method + path combination is public.
func isPublicRoute(method, path string) bool {
	// CORS preflight.
	if method == http.MethodOptions {
		return true
	}
	if method == http.MethodGet && (path == "/health" || strings.HasPrefix(path, "/health/")) {
		return true
	}
	for _, route := range publicRoutes {
		if method == route.method && path == route.path {
			return true
		}
	}
	return false
}

// Auth returns middleware that authorizes every non-public request.
//
// A request carrying X-API-Key is a service call and must present an allowed
// key. Any other request needs a valid bearer access token; the caller's id,
// email and role are then forwarded as X-User-* headers. Client-supplied
// identity headers are always dropped first.
func Auth(authn Authenticator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkgmw.StripIdentityHeaders(r.Header)

			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get(pkgmw.HeaderAPIKey); key != "" {
				if !authn.ValidateAPIKey(key) {
					l.WarnContext(r.Context(), "invalid api key",
						slog.String("path", r.URL.Path),
					)
					unauthorized(w, r, "invalid credentials")
					return
				}
				r.Header.Set(pkgmw.HeaderAuthType, pkgmw.AuthTypeAPIKey)
				ctx := pkgmw.WithPrincipal(r.Context(), pkgmw.Principal{AuthType: pkgmw.AuthTypeAPIKey})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, err := pkgmw.BearerToken(r)
			if err != nil {
				unauthorized(w, r, err.Error())
				return
			}

			identity, err := authn.ValidateSession(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrTokenExpired):
					httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "token has expired")
				case errors.Is(err, apperrors.ErrInvalidToken), errors.Is(err, apperrors.ErrNotFound):
					l.WarnContext(r.Context(), "rejected access token",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					unauthorized(w, r, "invalid or expired token")
				default:
					httputil.WriteError(w, r, err, l)
				}
				return
			}

			r.Header.Set(pkgmw.HeaderUserID, identity.UserID)
			r.Header.Set(pkgmw.HeaderUserEmail, identity.Email)
			r.Header.Set(pkgmw.HeaderUserRole, identity.Role)
			r.Header.Set(pkgmw.HeaderAuthType, pkgmw.AuthTypeBearer)

			ctx := pkgmw.WithPrincipal(r.Context(), pkgmw.Principal{
				UserID:   identity.UserID,
				Email:    identity.Email,
				Role:     identity.Role,
				AuthType: pkgmw.AuthTypeBearer,
			})
			ctx = logger.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
}
