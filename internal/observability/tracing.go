package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures span export over OTLP/gRPC. An empty endpoint
// leaves tracing as a no-op.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint, e.g. "localhost:4317".
	Endpoint string

	// SamplingRate is the fraction of traces recorded (0..1]. Zero means 1.
	SamplingRate float64

	// Insecure disables TLS on the collector connection.
	Insecure bool
}

// Tracer exports spans for HTTP requests, graph runs, tool calls, and LLM
// requests. A nil *Tracer is a valid no-op, so components can take one
// unconditionally.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a tracer and its shutdown function. Without an endpoint,
// or when the exporter cannot be built, the returned tracer records nothing.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kondate"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noop
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

// StartSpan opens a span with the given attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// HTTPSpan wraps one API request.
func (t *Tracer) HTTPSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "http."+method+" "+path,
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
}

// GraphSpan wraps one task graph execution.
func (t *Tracer) GraphSpan(ctx context.Context, sessionID string, tasks int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "graph.run",
		attribute.String("session.id", sessionID),
		attribute.Int("graph.tasks", tasks),
	)
}

// ToolSpan wraps one tool dispatch.
func (t *Tracer) ToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "tool."+tool, attribute.String("tool.name", tool))
}

// LLMSpan wraps one planning completion call.
func (t *Tracer) LLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "llm.complete", attribute.String("llm.model", model))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
