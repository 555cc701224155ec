package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the portal's metric instruments.
type AppMetrics struct {
	LoginAttemptsTotal     metric.Int64Counter
	LoginDurationSeconds   metric.Float64Histogram
	IdentityResolveTotal   metric.Int64Counter
	DbQueryDurationSeconds metric.Float64Histogram
	DbQueryErrorsTotal     metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

func must[T any](inst T, err error) T {
	if err != nil {
		log.Fatalf("Metrics: Failed to create instrument: %v", err)
	}
	return inst
}

// InitAppMetrics creates the instruments once, from the global MeterProvider.
// The tracer package installs the Prometheus-backed provider, so call it after
// tracer.InitTracingAndMetrics.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("MicDataPortal")

		const (
			loginAttempts   = "login_attempts_total"
			loginDuration   = "login_duration_seconds"
			identityResolve = "identity_resolve_total"
			dbDuration      = "db_query_duration_seconds"
			dbErrors        = "db_query_errors_total"
		)

		appMetrics = &AppMetrics{
			LoginAttemptsTotal: must(meter.Int64Counter(loginAttempts,
				metric.WithDescription("Login attempts by outcome"),
				metric.WithUnit("{attempt}"))),
			LoginDurationSeconds: must(meter.Float64Histogram(loginDuration,
				metric.WithDescription("Duration of credential checks in seconds"),
				metric.WithUnit("s"))),
			IdentityResolveTotal: must(meter.Int64Counter(identityResolve,
				metric.WithDescription("Session identity resolutions by outcome"),
				metric.WithUnit("{resolution}"))),
			DbQueryDurationSeconds: must(meter.Float64Histogram(dbDuration,
				metric.WithDescription("Duration of credential store queries in seconds"),
				metric.WithUnit("s"))),
			DbQueryErrorsTotal: must(meter.Int64Counter(dbErrors,
				metric.WithDescription("Credential store query failures"),
				metric.WithUnit("{error}"))),
		}
	})
}

// Get returns the global AppMetrics, initializing it on first use. Before the
// tracer provider is installed the instruments are bound to the no-op meter.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
