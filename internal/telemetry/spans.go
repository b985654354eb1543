package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartGraphSpan starts a client span for a single traversal against
// one of the GraphClient's named connections ("main" or "fraud").
func StartGraphSpan(ctx context.Context, connection, operation string) (context.Context, trace.Span) {
	tracer := Tracer("graph")
	return tracer.Start(ctx, fmt.Sprintf("graph.%s", operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graph.connection", connection),
			attribute.String("graph.operation", operation),
		),
	)
}

// StartRuleSpan starts an internal span around a single rule evaluation.
func StartRuleSpan(ctx context.Context, ruleName, txnID string) (context.Context, trace.Span) {
	tracer := Tracer("rules")
	return tracer.Start(ctx, fmt.Sprintf("rule.%s", ruleName), trace.WithAttributes(
		attribute.String("rule.name", ruleName),
		attribute.String("txn.id", txnID),
	))
}

// StartEngineSpan starts an internal span around fan-out/consolidation
// for one transaction.
func StartEngineSpan(ctx context.Context, txnID string) (context.Context, trace.Span) {
	tracer := Tracer("engine")
	return tracer.Start(ctx, "engine.submit", trace.WithAttributes(
		attribute.String("txn.id", txnID),
	))
}
