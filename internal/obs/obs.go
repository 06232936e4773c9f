// Package obs wires optional OpenTelemetry span export: one span per node
// execution, one span per agentic-step turn. This is strictly a live-view
// convenience for operators running a collector; it is never the
// replay-grade record of a run — that is internal/trace's JSONL event log,
// written unconditionally regardless of whether obs is enabled.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/clickweave-dev/clickweave/internal/runloop"

// Config is the subset of internal/config.ObsConfig this package consumes,
// duplicated here (rather than importing internal/config) so obs has no
// dependency on the config package's JSON shape.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string // "grpc" (default) or "http"
	Insecure    bool
	ServiceName string
}

// Tracer wraps an otel trace.Tracer with the two span shapes the run loop
// needs. The Tracer returned by Noop is safe to use and produces no spans;
// the zero value has no underlying tracer and must not be used.
type Tracer struct {
	tracer trace.Tracer
}

// Noop returns a Tracer backed by the global TracerProvider, which is a
// no-op implementation unless something has called otel.SetTracerProvider.
// Used when obs is disabled so callers never need a nil check.
func Noop() *Tracer {
	return &Tracer{tracer: otel.Tracer(scopeName)}
}

// Init sets up a TracerProvider exporting to the configured OTLP endpoint
// and returns a Tracer plus a shutdown function the caller must run before
// process exit. If cfg.Enabled is false, it returns a no-op Tracer and a
// no-op shutdown without touching the network.
func Init(ctx context.Context, cfg Config) (*Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		return Noop(), func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "clickweave"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("obs: build resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("obs: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{tracer: tp.Tracer(scopeName)}, tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// NodeSpan starts a span covering one node's execution.
func (t *Tracer) NodeSpan(ctx context.Context, nodeID, nodeName string, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "node.execute",
		trace.WithAttributes(
			attribute.String("clickweave.node.id", nodeID),
			attribute.String("clickweave.node.name", nodeName),
			attribute.String("clickweave.node.kind", kind),
		),
	)
}

// AgentTurnSpan starts a span covering one turn of an agentic step's
// bounded LLM<->tool loop.
func (t *Tracer) AgentTurnSpan(ctx context.Context, nodeID string, turn int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent_step.turn",
		trace.WithAttributes(
			attribute.String("clickweave.node.id", nodeID),
			attribute.Int("clickweave.agent_step.turn", turn),
		),
	)
}

// EndWithError records err on span (if non-nil) and ends it; a nil err ends
// the span with no error status. Safe to call with a nil span is not
// supported — callers always hold the span returned by NodeSpan/AgentTurnSpan.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
