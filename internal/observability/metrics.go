package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cst/dispatch"

// Metrics holds the service's OTEL instruments. A nil *Metrics is a no-op.
type Metrics struct {
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	errors      metric.Int64Counter
	transitions metric.Int64Counter
	dispatches  metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider. Call it after
// InitTelemetry so they bind to the exporting provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsWithMeter creates instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.requests, err = meter.Int64Counter("http.server.request_count"); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("http.server.duration", metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("http.server.error_count"); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("cst.workflow.transitions",
		metric.WithDescription("Applied request status transitions")); err != nil {
		return nil, err
	}
	if m.dispatches, err = meter.Int64Counter("cst.dispatch.outcomes",
		metric.WithDescription("Dispatch attempts by mode and outcome")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordRequest counts a served request and its latency.
func (m *Metrics) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordError counts a failed request by error code.
func (m *Metrics) RecordError(ctx context.Context, route, method, code string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.String("error.code", code),
	))
}

// RecordTransition counts a status change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordDispatch counts a dispatch attempt. mode is "auto" or "manual";
// outcome is "assigned" or an error code.
func (m *Metrics) RecordDispatch(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}
