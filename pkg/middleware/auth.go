package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Headers carrying caller identity between the gateway and backend services.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
	HeaderUserID        = "X-User-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderUserRole      = "X-User-Role"
	HeaderAuthType      = "X-Auth-Type"
)

// Authentication methods recorded on a Principal.
const (
	AuthTypeBearer = "bearer"
	AuthTypeAPIKey = "api-key"
)

var (
	ErrMissingToken   = errors.New("missing authorization header")
	ErrMalformedToken = errors.New("invalid authorization header format")
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string
	Email    string
	Role     string
	AuthType string
}

// IsService reports whether the caller authenticated with an API key rather than a user session.
func (p Principal) IsService() bool {
	return p.AuthType == AuthTypeAPIKey
}

type principalKey struct{}

// WithPrincipal stores p in ctx and tags the active request span with the
// caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	attrs := []attribute.KeyValue{attribute.String("enduser.auth_type", p.AuthType)}
	if p.UserID != "" {
		attrs = append(attrs, attribute.String("enduser.id", p.UserID))
	}
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID
	}
	return ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}

// StripIdentityHeaders removes identity headers a client may have forged.
// Only the gateway is allowed to set them on proxied requests.
func StripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserEmail)
	h.Del(HeaderUserRole)
	h.Del(HeaderAuthType)
}
