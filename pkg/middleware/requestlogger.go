package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id,
// user_id, trace_id and span_id and stores it with logger.NewContext.
// Mount it after RequestLogging and Tracing, and again after authentication
// if user_id should be included.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
