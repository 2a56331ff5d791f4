package observability

import (
	"context"
	"log/slog"

	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
)

type Options struct {
	ServiceName string
	LogLevel    string
	Tracing     bool
}

// Setup initializes logging, metrics and, optionally, tracing. The returned
// function flushes the tracer and is always non-nil.
func Setup(ctx context.Context, opts Options) func(context.Context) error {
	observability.InitLogger(opts.LogLevel)
	observability.InitMetrics()

	noop := func(context.Context) error { return nil }
	if !opts.Tracing {
		return noop
	}
	shutdown, err := observability.InitTracing(ctx, opts.ServiceName)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return noop
	}
	return shutdown
}
