// Package tracing provides the shared OTel tracer used by the query engine.
//
// Without a registered TracerProvider the global no-op provider is used and
// every call is inert.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "p8fs"

// Start creates a span as a child of the span in ctx, or a root span when
// ctx carries none. The caller must end the span.
//
//	ctx, span := tracing.Start(ctx, "rem.traverse",
//	    attribute.String("rem.initial_query_type", "lookup"),
//	    attribute.Int("rem.max_depth", 2),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}
