// Package telemetry sets up OpenTelemetry tracing for the engine: one span
// per calculation stage and one per task attempt.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every engine span
const TracerName = "github.com/dd0wney/cluso-hazard"

var ErrUnknownExporter = errors.New("unknown trace exporter")

// Config selects the trace exporter
type Config struct {
	ServiceName  string `yaml:"service_name"`
	Exporter     string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// DefaultConfig returns a disabled tracer
func DefaultConfig() Config {
	return Config{
		ServiceName:  "hazardcalc",
		Exporter:     getEnvOr("OTEL_TRACES_EXPORTER", "none"),
		OTLPEndpoint: getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure: true,
	}
}

// Init installs the global tracer provider. The stdout exporter writes to w
// (os.Stderr when nil). The returned function flushes and stops it.
func Init(ctx context.Context, cfg Config, w io.Writer) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	tp := NewProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
	)))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider sampling every span
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)...)
}

// StartSpan starts a span on the global engine tracer. Caller must call span.End().
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks it failed. Nil span or error is a no-op.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// End records err, if any, then ends the span
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		SetSpanOK(span)
	}
	span.End()
}

// TraceID returns the hex trace id of the span in ctx, or ""
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
