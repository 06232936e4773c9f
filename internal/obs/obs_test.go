package obs

import (
	"context"
	"errors"
	"testing"
)

func TestInit_DisabledReturnsNoop(t *testing.T) {
	tracer, shutdown, err := Init(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if tracer == nil {
		t.Fatal("expected a non-nil Tracer")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNodeSpan_NoopDoesNotPanic(t *testing.T) {
	tracer := Noop()
	ctx, span := tracer.NodeSpan(context.Background(), "n1", "Click Submit", "Click")
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	EndWithError(span, nil)
}

func TestAgentTurnSpan_NoopRecordsError(t *testing.T) {
	tracer := Noop()
	_, span := tracer.AgentTurnSpan(context.Background(), "n2", 3)
	EndWithError(span, errors.New("tool call failed"))
}

func TestNewExporter_DefaultsToGRPC(t *testing.T) {
	exp, err := newExporter(context.Background(), Config{Protocol: "", Endpoint: "localhost:4317", Insecure: true})
	if err != nil {
		t.Fatalf("newExporter: %v", err)
	}
	if exp == nil {
		t.Fatal("expected a non-nil exporter")
	}
}

func TestNewExporter_HTTP(t *testing.T) {
	exp, err := newExporter(context.Background(), Config{Protocol: "http", Endpoint: "localhost:4318", Insecure: true})
	if err != nil {
		t.Fatalf("newExporter: %v", err)
	}
	if exp == nil {
		t.Fatal("expected a non-nil exporter")
	}
}
