package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by recording each event as an
// OpenTelemetry span, for distributed tracing of a workflow run across
// process boundaries (e.g., a handler that shells out to another
// service). Every event represents a point in time rather than a
// duration, so its span is started and ended immediately.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter wraps a tracer, such as one obtained from
// otel.Tracer("flowcored").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) EmitNodeStatus(e NodeStatusEvent) {
	_, span := o.tracer.Start(context.Background(), "node-status")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow_id", e.WorkflowID),
		attribute.String("node_id", e.NodeID),
		attribute.String("status", string(e.Status)),
	)
	if e.ErrorMessage != "" {
		span.SetAttributes(attribute.String("error_message", e.ErrorMessage))
		span.SetStatus(codes.Error, e.ErrorMessage)
	}
}

func (o *OTelEmitter) EmitEdgeStatus(e EdgeStatusEvent) {
	_, span := o.tracer.Start(context.Background(), "edge-status")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow_id", e.WorkflowID),
		attribute.String("edge_id", e.EdgeID),
		attribute.String("status", string(e.Status)),
	)
}

func (o *OTelEmitter) EmitProgress(e ProgressEvent) {
	_, span := o.tracer.Start(context.Background(), "progress")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow_id", e.WorkflowID),
		attribute.String("node_id", e.NodeID),
		attribute.Int("progress", e.Progress),
		attribute.String("message", e.Message),
	)
}

// Flush is a no-op here; span export is the configured TracerProvider's
// responsibility (typically a batch span processor flushed at shutdown).
func (o *OTelEmitter) Flush(_ context.Context) error {
	return nil
}
