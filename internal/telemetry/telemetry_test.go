package telemetry

import (
	"context"
	"testing"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("SPYCATS_OTEL_ENDPOINT", "")
	t.Setenv("SPYCATS_OTEL_SERVICE_NAME", "")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !cfg.Enabled {
		t.Fatalf("expected enabled by default")
	}
	if cfg.Endpoint != "" {
		t.Fatalf("expected empty endpoint, got %q", cfg.Endpoint)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("SPYCATS_OTEL_ENABLED", "false")
	t.Setenv("SPYCATS_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("SPYCATS_OTEL_SERVICE_NAME", "spycats-test")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Enabled || cfg.Endpoint != "http://collector:4318" || cfg.ServiceName != "spycats-test" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: true})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
