// Package trace installs an OpenTelemetry tracer provider that exports spans
// over OTLP/gRPC.
package trace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "sopsgate"

// ErrNoEndpoint is returned when no collector endpoint is given.
var ErrNoEndpoint = errors.New("no endpoint")

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(context.Context) error

// NewProvider creates a tracer provider that batches spans to exporter.
func NewProvider(exporter sdktrace.SpanExporter, version string) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		)),
	)
}

// Setup exports spans to the collector at endpoint and installs the provider
// globally. The endpoint is either a URL (http://localhost:4317), or a plain
// host:port, which is dialed without TLS.
func Setup(ctx context.Context, endpoint, version string) (ShutdownFunc, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	var opt otlptracegrpc.Option
	if strings.Contains(endpoint, "://") {
		opt = otlptracegrpc.WithEndpointURL(endpoint)
	} else {
		opt = otlptracegrpc.WithEndpoint(endpoint)
	}

	opts := []otlptracegrpc.Option{opt}
	if !strings.HasPrefix(endpoint, "https://") {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := NewProvider(exporter, version)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}

		return nil
	}, nil
}
