// Package otel provides tracing helpers shared by the roster components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on roster spans
const (
	AttrClientID     = attribute.Key("roster.client.id")
	AttrOperation    = attribute.Key("roster.operation")
	AttrLiveCount    = attribute.Key("roster.live.count")
	AttrKnownCount   = attribute.Key("roster.known.count")
	AttrActiveCount  = attribute.Key("roster.active.count")
	AttrChanged      = attribute.Key("roster.changed")
	AttrRegistryFile = attribute.Key("roster.file")
)

// StartSpan starts a span on tracer. A nil tracer yields the span already in
// ctx, which is a no-op when tracing is off.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. Nil spans and nil errors are ignored.
// The status text stays generic; the error itself is attached as an event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
