package telemetry

import (
	"context"
	"testing"

	"starlane.ai/internal/config"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, Endpoint: "http://localhost:4318"},
		{Enabled: true},
	} {
		tracer, shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Setup(%+v): %v", cfg, err)
		}
		if tracer != nil {
			t.Fatalf("Setup(%+v) returned a tracer", cfg)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}
}

func TestSetup_CreatesTracer(t *testing.T) {
	// Non-routable; nothing is exported because no span ends before shutdown.
	tracer, shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "starlane-test",
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tracer == nil {
		t.Fatalf("expected a tracer")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
