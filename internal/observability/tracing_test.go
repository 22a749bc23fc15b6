package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/orbital-power-sim/internal/config"
	"github.com/signalsfoundry/orbital-power-sim/internal/logging"
)

func TestTracingConfigFrom(t *testing.T) {
	got := TracingConfigFrom(config.Config{
		App:     config.AppConfig{Version: "1.2.0"},
		Tracing: config.TracingConfig{Enabled: true, Exporter: "OTLP", SampleRatio: 0.5},
	})
	if got.Exporter != "otlp" || got.ServiceName != "solarsim" || got.SampleRatio != 0.5 || !got.Enabled {
		t.Fatalf("TracingConfigFrom = %+v", got)
	}
	if got.ServiceVersion != "1.2.0" {
		t.Fatalf("ServiceVersion = %q, want 1.2.0", got.ServiceVersion)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:        true,
		ServiceName:    "solarsim-test",
		ServiceVersion: "9.9.9",
		Exporter:       "stdout",
		SampleRatio:    1,
		Writer:         &buf,
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, span := otel.Tracer("test").Start(context.Background(), "simulation.Run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, logging.Noop())

	for _, want := range []string{"simulation.Run", "9.9.9"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("exported span missing %q: %q", want, buf.String())
		}
	}
}

func TestInitTracingRejectsSampleRatioOutOfRange(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "stdout", SampleRatio: ratio}, nil); err == nil {
			t.Fatalf("expected error for sample ratio %v", ratio)
		}
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}
