package database

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tan-res-space/draft-genie-sub004/pkg/database"

// Database systems reported in the db.system span attribute.
const (
	SystemPostgres = "postgresql"
	SystemRedis    = "redis"
)

// QueryTracer wraps storage operations in client spans and logs operations
// slower than a threshold. A zero threshold or nil logger disables slow logging.
type QueryTracer struct {
	system        string
	slowThreshold time.Duration
	logger        *slog.Logger
}

// NewQueryTracer creates a tracer for the given db.system.
func NewQueryTracer(system string, slowThreshold time.Duration, logger *slog.Logger) *QueryTracer {
	return &QueryTracer{system: system, slowThreshold: slowThreshold, logger: logger}
}

// Trace starts a span for one operation. Call the returned function with the
// operation's error when it completes:
//
//	ctx, end := t.Trace(ctx, "ConsumeRefreshToken", query)
//	defer func() { end(err) }()
//
// A nil *QueryTracer is valid and only creates spans.
func (t *QueryTracer) Trace(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	system := SystemPostgres
	if t != nil && t.system != "" {
		system = t.system
	}

	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if t == nil || t.slowThreshold <= 0 || t.logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= t.slowThreshold {
			attrs := []any{
				slog.String("db_system", system),
				slog.String("operation", operation),
				slog.String("statement", statement),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			t.logger.WarnContext(ctx, "slow query detected", attrs...)
		}
	}
}
