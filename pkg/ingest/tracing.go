package ingest

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName - имя трейсера, под которым создаются спаны библиотеки.
// Используется глобальный провайдер OpenTelemetry; без настройки он no-op.
const TracerName = "github.com/example/ingest"

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// startServerSpan открывает спан обработки одного запроса на сервере.
func startServerSpan(ctx context.Context, c *Connection) (context.Context, trace.Span) {
	return tracer().Start(ctx, "ingest.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64("ingest.conn_id", int64(c.ID())),
			attribute.String("net.peer.addr", c.RemoteAddrString()),
		),
	)
}

// startClientSpan открывает спан одного SendRequest.
func startClientSpan(ctx context.Context, requestID, address string, method Method, path string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "ingest.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ingest.request_id", requestID),
			attribute.String("ingest.method", method.String()),
			attribute.String("ingest.path", path),
			attribute.String("net.peer.addr", address),
		),
	)
}

// endSpan фиксирует результат и закрывает спан.
func endSpan(span trace.Span, response string, err error) {
	if response != "" {
		span.SetAttributes(attribute.String("ingest.response", response))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
