// tracer.go provides OpenTelemetry tracing initialization.
//
// Every refresh runs inside a span named after the operation, so the spans
// exported here show the ledger queries and contract reads a refresh issued.
//
// Usage:
//
//	shutdown, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
//	    ServiceName:  "pool-state",
//	    OTLPEndpoint: "localhost:4317",
//	})
//	defer shutdown(ctx)
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerConfig holds configuration for the tracer.
type TracerConfig struct {
	// ServiceName is the name of the service (e.g., "pool-state").
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Environment is the deployment environment (e.g., "development", "production").
	Environment string

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317").
	// If empty, traces are exported to stdout.
	OTLPEndpoint string

	// SampleRate is the sampling rate (0.0 to 1.0). Default is 1.0 (sample everything).
	SampleRate float64
}

// TracerConfigDefaults returns default configuration.
func TracerConfigDefaults() TracerConfig {
	return TracerConfig{
		ServiceName:    "pool-state",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
	}
}

// InitTracer installs a global tracer provider and the W3C propagators.
// The returned function flushes pending spans and should be called on exit.
func InitTracer(ctx context.Context, config TracerConfig) (shutdown func(context.Context) error, err error) {
	if config.ServiceName == "" {
		config.ServiceName = TracerConfigDefaults().ServiceName
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	if config.OTLPEndpoint != "" {
		conn, err := grpc.NewClient(
			config.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}

		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(5*time.Second),
		),
		trace.WithResource(res),
		trace.WithSampler(sampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}
