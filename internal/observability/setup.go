package observability

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ShutdownFunc is called to flush and shut down the telemetry providers.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Exporter wiring is deferred
// until a collector is deployed alongside the service.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel: tracer initialized", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// HTTP requests.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}
