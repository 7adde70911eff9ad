package otel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/elabgate/internal/logging"
	"github.com/emiliopalmerini/elabgate/internal/ports"
)

const (
	serviceName    = "elabgate"
	serviceVersion = "1.0.0"
)

// Exporter exports relay metrics to an OTEL Collector.
type Exporter struct {
	provider       *sdkmetric.MeterProvider
	upstreamCalls  metric.Int64Counter
	upstreamTime   metric.Float64Histogram
	operationTotal metric.Int64Counter
}

// NewExporter creates an exporter pushing to the configured OTLP gRPC endpoint.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	e, err := NewExporterWithReader(ctx, sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

// NewExporterWithReader builds the instruments on top of reader. Tests use
// a manual reader to collect what was recorded.
func NewExporterWithReader(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)

	upstreamCalls, err := meter.Int64Counter(
		"elabgate_upstream_requests_total",
		metric.WithDescription("Requests sent to eLabFTW"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating upstream counter: %w", err)
	}

	upstreamTime, err := meter.Float64Histogram(
		"elabgate_upstream_request_duration_seconds",
		metric.WithDescription("Latency of requests sent to eLabFTW"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating upstream histogram: %w", err)
	}

	operationTotal, err := meter.Int64Counter(
		"elabgate_operations_total",
		metric.WithDescription("Relay operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operations counter: %w", err)
	}

	return &Exporter{
		provider:       provider,
		upstreamCalls:  upstreamCalls,
		upstreamTime:   upstreamTime,
		operationTotal: operationTotal,
	}, nil
}

func (e *Exporter) RecordUpstreamCall(ctx context.Context, call ports.UpstreamCall) {
	status := "error"
	if call.StatusCode > 0 {
		status = strconv.Itoa(call.StatusCode)
	}
	opt := metric.WithAttributes(
		attribute.String("operation", call.Operation),
		attribute.String("method", call.Method),
		attribute.String("status", status),
	)
	e.upstreamCalls.Add(ctx, 1, opt)
	e.upstreamTime.Record(ctx, call.Duration.Seconds(), opt)
}

func (e *Exporter) RecordOperation(ctx context.Context, operation, outcome string) {
	e.operationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// New returns the OTLP exporter when metrics are enabled, and a no-op
// exporter otherwise or when the exporter cannot be created.
func New(ctx context.Context, cfg Config, logger *slog.Logger) ports.MetricsExporter {
	if !cfg.Enabled {
		return NewNoOpExporter()
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "metrics disabled", logging.Error(err))
		}
		return NewNoOpExporter()
	}
	return exp
}
