package decorators

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns a hook opening a client span per store call.
func Tracing(tracer trace.Tracer, backend string) Hook {
	return func(ctx context.Context, table, op string, call func(context.Context) error) error {
		ctx, span := tracer.Start(ctx, "repository."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", backend),
				attribute.String("db.collection.name", table),
				attribute.String("db.operation.name", op),
			),
		)
		defer span.End()

		err := call(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
