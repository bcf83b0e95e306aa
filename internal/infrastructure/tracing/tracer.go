// Package tracing provides OpenTelemetry-based tracing infrastructure.
// It supports stdout and OTLP exporters and provides span helpers for
// protocol requests, tool calls and calibration searches.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the tokenpad tracer.
	TracerName = "github.com/jbctechsolutions/tokenpad"

	// Version is the semantic version of the tracer.
	Version = "1.0.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stderr)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "tokenpad",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	// Create exporter
	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create sampler
	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// Create tracer provider
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global propagator
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set global tracer provider
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		// stdout carries the protocol stream.
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(out))

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// --- Domain-specific span helpers ---

// RequestSpan covers one JSON-RPC request.
type RequestSpan struct {
	span trace.Span
}

// StartRequestSpan starts a span for a protocol request.
func (t *Tracer) StartRequestSpan(ctx context.Context, method, requestID string) (context.Context, *RequestSpan) {
	ctx, span := t.tracer.Start(ctx, "mcp.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.method", method),
			attribute.String("rpc.request_id", requestID),
		),
	)
	return ctx, &RequestSpan{span: span}
}

// SetErrorCode records the JSON-RPC error code of the response.
func (rs *RequestSpan) SetErrorCode(code int) {
	rs.span.SetAttributes(attribute.Int("rpc.error_code", code))
}

// End ends the request span with success status.
func (rs *RequestSpan) End() {
	rs.span.SetStatus(codes.Ok, "request handled")
	rs.span.End()
}

// EndWithError ends the request span with error status.
func (rs *RequestSpan) EndWithError(err error) {
	rs.span.RecordError(err)
	rs.span.SetStatus(codes.Error, err.Error())
	rs.span.End()
}

// ToolSpan covers one tool invocation.
type ToolSpan struct {
	span trace.Span
}

// StartToolSpan starts a span for a tool call.
func (t *Tracer) StartToolSpan(ctx context.Context, tool string) (context.Context, *ToolSpan) {
	ctx, span := t.tracer.Start(ctx, "tool.call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("tool.name", tool)),
	)
	return ctx, &ToolSpan{span: span}
}

// SetContextUsage records the tracker state after the call.
func (ts *ToolSpan) SetContextUsage(accumulated, headroom int) {
	ts.span.SetAttributes(
		attribute.Int("context.accumulated_tokens", accumulated),
		attribute.Int("context.headroom_tokens", headroom),
	)
}

// SetPadded records whether the response was padded.
func (ts *ToolSpan) SetPadded(padded bool, fillerCount int) {
	ts.span.SetAttributes(
		attribute.Bool("tool.padded", padded),
		attribute.Int("tool.filler_count", fillerCount),
	)
}

// End ends the tool span with success status.
func (ts *ToolSpan) End() {
	ts.span.SetStatus(codes.Ok, "tool completed")
	ts.span.End()
}

// EndWithError ends the tool span with error status.
func (ts *ToolSpan) EndWithError(err error) {
	ts.span.RecordError(err)
	ts.span.SetStatus(codes.Error, err.Error())
	ts.span.End()
}

// CalibrationSpan covers one calibration search.
type CalibrationSpan struct {
	span trace.Span
}

// StartCalibrationSpan starts a span for a calibration search.
func (t *Tracer) StartCalibrationSpan(ctx context.Context, tokenizer string, baseTokens, targetTokens int) (context.Context, *CalibrationSpan) {
	ctx, span := t.tracer.Start(ctx, "padding.calibrate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tokenizer.identity", tokenizer),
			attribute.Int("padding.tokens.base", baseTokens),
			attribute.Int("padding.tokens.target", targetTokens),
		),
	)
	return ctx, &CalibrationSpan{span: span}
}

// SetResult records the calibration outcome.
func (cs *CalibrationSpan) SetResult(reason string, fillerCount, observed, estimatorCalls int) {
	cs.span.SetAttributes(
		attribute.String("padding.exit_reason", reason),
		attribute.Int("padding.filler_count", fillerCount),
		attribute.Int("padding.tokens.observed", observed),
		attribute.Int("padding.estimator_calls", estimatorCalls),
	)
}

// End ends the calibration span.
func (cs *CalibrationSpan) End() {
	cs.span.SetStatus(codes.Ok, "calibration finished")
	cs.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetAttribute sets an attribute on the current span.
func SetAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	}
}
