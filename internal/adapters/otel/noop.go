package otel

import (
	"context"

	"github.com/emiliopalmerini/elabgate/internal/ports"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordUpstreamCall(context.Context, ports.UpstreamCall) {}

func (e *NoOpExporter) RecordOperation(context.Context, string, string) {}

func (e *NoOpExporter) Close(context.Context) error {
	return nil
}
