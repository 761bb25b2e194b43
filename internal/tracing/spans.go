package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes spans created by StartOperation. The tracer resolves
// through the global provider, so spans are recording only when an enabled
// Provider has been installed.
const tracerName = "github.com/fiberline/switchyard"

// Span attribute keys. These constants define the semantic conventions for
// span attributes across the orchestration system.
const (
	AttrTenantID     = "tenant.id"
	AttrSubscriberID = "subscriber.id"

	AttrWorkflowID     = "workflow.id"
	AttrWorkflowKind   = "workflow.kind"
	AttrWorkflowStatus = "workflow.status"

	AttrStepName     = "step.name"
	AttrStepSequence = "step.sequence"

	AttrServiceInstanceID = "service.instance_id"
	AttrServiceStatus     = "service.status"

	AttrErrorMessage = "error.message"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixOperation = "operation."
	SpanPrefixWorkflow  = "workflow."
	SpanPrefixStep      = "step."
)

// StartOperation opens an internal span named operation.<name> on the global
// tracer. Callers must End the returned span.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, SpanPrefixOperation+name,
		trace.WithSpanKind(trace.SpanKindInternal))
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordOutcome sets the span status from an operation's error result and
// records the error when present.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// TenantAttr tags a span with the tenant scope.
func TenantAttr(tenantID string) attribute.KeyValue {
	return attribute.String(AttrTenantID, tenantID)
}

// WorkflowAttr tags a span with a workflow run identity.
func WorkflowAttr(workflowID string) attribute.KeyValue {
	return attribute.String(AttrWorkflowID, workflowID)
}

// KindAttr tags a span with the workflow definition name.
func KindAttr(kind string) attribute.KeyValue {
	return attribute.String(AttrWorkflowKind, kind)
}

// InstanceAttr tags a span with a service instance identity.
func InstanceAttr(instanceID string) attribute.KeyValue {
	return attribute.String(AttrServiceInstanceID, instanceID)
}
