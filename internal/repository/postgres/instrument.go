package repository

import (
	"context"
	"errors"
	"time"

	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const uniqueViolation = "23505"

func startSpan(ctx context.Context, tracerName, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, method)
}

// finish ends span and records the call. errp is read when the deferred
// call runs, so it must point at the method's named error result.
func finish(span trace.Span, method string, start time.Time, errp *error) {
	status := "success"
	if errp != nil && *errp != nil {
		status = "error"
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	observability.RepositoryCalls.WithLabelValues(method, status).Inc()
	observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	span.End()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}
