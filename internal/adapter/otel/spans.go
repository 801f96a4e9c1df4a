package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentledger"

// StartOperationSpan starts a span for one ledger operation. subject is the
// entity key the operation acts on.
func StartOperationSpan(ctx context.Context, op, caller, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("ledger.operation", op),
			attribute.String("ledger.caller", caller),
			attribute.String("ledger.subject", subject),
		),
	)
}

// StartPublishSpan starts a span for publishing one ledger event.
func StartPublishSpan(ctx context.Context, eventType, subject string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.subject", subject),
		),
	)
}

// EndSpan records err (if any) with its kind on span and ends it.
func EndSpan(span trace.Span, err error, kind string) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", kind))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
