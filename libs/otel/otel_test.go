package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "2")

	cfg := ConfigFromEnv("timetable-service")
	if !cfg.Enabled || cfg.OTLPEndpoint != "collector:4317" || cfg.SampleRatio != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ServiceVersion != "dev" || cfg.Environment != "local" {
		t.Fatalf("unexpected resource defaults: %+v", cfg)
	}
}

func TestParseRatio(t *testing.T) {
	for raw, want := range map[string]float64{"0.25": 0.25, "-1": 0, "3": 1, "abc": 1} {
		if got := parseRatio(raw); got != want {
			t.Fatalf("parseRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	if _, err := Setup(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithTraceContext(context.Background(), parent, "")
	got, _ := TraceContextStrings(ctx)
	if got != parent {
		t.Fatalf("traceparent = %q, want %q", got, parent)
	}
}
