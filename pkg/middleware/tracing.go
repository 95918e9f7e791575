package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerPrefix = "github.com/tan-res-space/draft-genie-sub004/services/"

// Tracing opens a server span for each request. An inbound traceparent is
// continued and the outgoing response carries the span's context. After the
// handler runs, the span takes the name of the matched chi route.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerPrefix + serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			carrier := propagation.HeaderCarrier(r.Header)
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), carrier)

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			if pattern := routePattern(r); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
			finishSpan(span, rec.status)
		})
	}
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	proto := "http"
	switch {
	case r.TLS != nil:
		proto = "https"
	case r.Header.Get("X-Forwarded-Proto") != "":
		proto = r.Header.Get("X-Forwarded-Proto")
	}

	return []attribute.KeyValue{
		semconv.HTTPMethod(r.Method),
		semconv.HTTPTarget(r.URL.Path),
		semconv.HTTPScheme(proto),
		semconv.UserAgentOriginal(r.UserAgent()),
		attribute.String("http.client_ip", r.RemoteAddr),
	}
}

// routePattern is read from the shared chi route context, which the router
// fills in while dispatching.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// finishSpan records the status code. Only server errors mark the span failed.
func finishSpan(span trace.Span, status int) {
	span.SetAttributes(semconv.HTTPStatusCode(status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
