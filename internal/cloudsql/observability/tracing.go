package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this module's spans in whatever trace backend the
// host application configures via otel.SetTracerProvider.
const TracerName = "cloudsqlconn"

// StartClientSpan starts a span around an outbound call this module
// makes on the caller's behalf (an admin API fetch, a TLS dial), mirroring
// the teacher's tracing.StartClientSpan.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// StartInternalSpan starts a span around work that never leaves the
// process, such as one refresh attempt's scheduling decision.
func StartInternalSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

// EndSpan records err (if non-nil) on span and sets its final status,
// then ends it. Callers defer this immediately after starting a span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InstanceAttribute tags a span with the instance connection name a
// refresh or dial operation concerns.
func InstanceAttribute(conn string) attribute.KeyValue {
	return attribute.String("cloudsql.instance", conn)
}
