package main

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowforge/flowcore/flow/emit"
)

// setupTracing installs a process-wide OpenTelemetry TracerProvider (no
// exporter is registered, so spans are recorded and discarded; the
// provider itself is not returned) and returns an emit.Emitter over it
// plus the provider's shutdown func to flush/close on exit.
func setupTracing() (emit.Emitter, func(context.Context) error, error) {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)

	var tracer trace.Tracer = otel.Tracer("flowcored")
	return emit.NewOTelEmitter(tracer), provider.Shutdown, nil
}
