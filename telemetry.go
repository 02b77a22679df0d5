package signalr

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loneosama/signalr"

// telemetry wraps the OpenTelemetry instruments HubConnection records
// against. A nil TracerProvider/MeterProvider (the default) resolves to
// the global no-op implementations, so telemetry costs nothing until a
// caller wires a real SDK via WithTracerProvider/WithMeterProvider.
type telemetry struct {
	tracer    trace.Tracer
	sentBytes metric.Int64Counter
	recvBytes metric.Int64Counter
	started   metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	sent, _ := meter.Int64Counter("signalr.sent_bytes")
	recv, _ := meter.Int64Counter("signalr.received_bytes")
	started, _ := meter.Int64Counter("signalr.started")
	return &telemetry{
		tracer:    tp.Tracer(instrumentationName),
		sentBytes: sent,
		recvBytes: recv,
		started:   started,
	}
}

// startSpan opens a span named after method, tagged with direction and
// invocation id, mirroring the teacher's start/rpcStats.end pairing around
// every Call/Notify and every dispatched inbound message.
func (t *telemetry) startSpan(ctx context.Context, method string, dir Direction, id string) (context.Context, trace.Span) {
	if method == "" {
		method = "(unknown)"
	}
	t.started.Add(ctx, 1)
	return t.tracer.Start(ctx, method, trace.WithAttributes(
		attribute.String("rpc.direction", string(dir)),
		attribute.String("rpc.invocation_id", id),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func (t *telemetry) recordSent(ctx context.Context, n int) {
	t.sentBytes.Add(ctx, int64(n))
}

func (t *telemetry) recordReceived(ctx context.Context, n int) {
	t.recvBytes.Add(ctx, int64(n))
}
