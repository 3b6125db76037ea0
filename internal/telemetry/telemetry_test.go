package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "cinefinder", "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestTrimScheme(t *testing.T) {
	for raw, want := range map[string]string{
		"http://otel-collector:4318": "otel-collector:4318",
		"https://otel.example.com":   "otel.example.com",
		"otel-collector:4318":        "otel-collector:4318",
	} {
		if got := trimScheme(raw); got != want {
			t.Fatalf("trimScheme(%q) = %q, want %q", raw, got, want)
		}
	}
}
