package ports

import (
	"context"
	"time"
)

// MetricsExporter exports relay metrics to an external observability system.
type MetricsExporter interface {
	// RecordUpstreamCall records one HTTP exchange with eLabFTW.
	RecordUpstreamCall(ctx context.Context, call UpstreamCall)
	// RecordOperation records the outcome of one relay operation.
	RecordOperation(ctx context.Context, operation string, outcome string)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}

// UpstreamCall describes a single request sent to eLabFTW.
type UpstreamCall struct {
	Operation  string
	Method     string
	StatusCode int // zero when the request never got a response
	Duration   time.Duration
}
