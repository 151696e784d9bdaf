package telemetry

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options configures InitTracer.
type Options struct {
	ServiceName string
	// Enabled installs a stdout exporter. When false spans are still
	// created and sampled but never exported.
	Enabled bool
	// Writer receives exported spans; defaults to stdout.
	Writer io.Writer
}

// InitTracer installs the global tracer provider and returns its shutdown
// function.
func InitTracer(opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.Enabled {
		exporterOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if opts.Writer != nil {
			exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
		}
		exporter, err := stdouttrace.New(exporterOpts...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized",
		slog.String("service", opts.ServiceName),
		slog.Bool("export", opts.Enabled))

	return tp.Shutdown, nil
}
