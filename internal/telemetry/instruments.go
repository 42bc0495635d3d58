package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// NewCounter creates a counter on the global MeterProvider. Instruments are
// created before InitMeterProvider runs in tests, so a failed creation falls
// back to a no-op counter instead of failing the caller.
func NewCounter(meterName, name, description string) metric.Int64Counter {
	counter, err := otel.Meter(meterName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return counter
}
