package tracing

import (
	"context"
	"os"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func TestVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with SERVICE_VERSION set",
			envValue: "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "with empty SERVICE_VERSION",
			envValue: "",
			expected: "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("SERVICE_VERSION", tt.envValue)
				defer os.Unsetenv("SERVICE_VERSION")
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}

			result := version()
			if result != tt.expected {
				t.Errorf("version() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestInstanceID(t *testing.T) {
	tests := []struct {
		name        string
		hostnameEnv string
		podNameEnv  string
		expected    string
	}{
		{
			name:        "with HOSTNAME set",
			hostnameEnv: "web-server-01",
			podNameEnv:  "",
			expected:    "web-server-01",
		},
		{
			name:        "with POD_NAME set (no HOSTNAME)",
			hostnameEnv: "",
			podNameEnv:  "markethub-worker-abc123",
			expected:    "markethub-worker-abc123",
		},
		{
			name:        "with both HOSTNAME and POD_NAME set (HOSTNAME takes precedence)",
			hostnameEnv: "web-server-01",
			podNameEnv:  "markethub-worker-abc123",
			expected:    "web-server-01",
		},
		{
			name:        "with neither set",
			hostnameEnv: "",
			podNameEnv:  "",
			expected:    "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clean up environment
			os.Unsetenv("HOSTNAME")
			os.Unsetenv("POD_NAME")

			// Set test environment
			if tt.hostnameEnv != "" {
				os.Setenv("HOSTNAME", tt.hostnameEnv)
				defer os.Unsetenv("HOSTNAME")
			}
			if tt.podNameEnv != "" {
				os.Setenv("POD_NAME", tt.podNameEnv)
				defer os.Unsetenv("POD_NAME")
			}

			result := instanceID()
			if result != tt.expected {
				t.Errorf("instanceID() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{
			name:     "with http:// prefix",
			envValue: "http://tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "with https:// prefix",
			envValue: "https://tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "without protocol prefix",
			envValue: "tempo:4318",
			expected: "tempo:4318",
		},
		{
			name:     "with custom endpoint",
			envValue: "otel-collector.monitoring.svc.cluster.local:4318",
			expected: "otel-collector.monitoring.svc.cluster.local:4318",
		},
		{
			name:     "empty environment variable",
			envValue: "",
			expected: "tempo:4318",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)
				defer os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			} else {
				os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
			}

			result := otlpEndpoint()
			if result != tt.expected {
				t.Errorf("otlpEndpoint() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetTracer(t *testing.T) {
	tracer := GetTracer()
	if tracer == nil {
		t.Error("GetTracer() returned nil")
	}

	ctx := context.Background()
	_, span := tracer.Start(ctx, "test-span")
	if span == nil {
		t.Error("GetTracer().Start() returned nil span")
	}
	span.End()
}

func TestStartSpan(t *testing.T) {
	tests := []struct {
		name     string
		spanName string
		attrs    []attribute.KeyValue
	}{
		{
			name:     "simple span without attributes",
			spanName: "test-operation",
			attrs:    nil,
		},
		{
			name:     "span with single attribute",
			spanName: "store-query",
			attrs:    []attribute.KeyValue{attribute.String("db.table", "publication_tasks")},
		},
		{
			name:     "span with multiple attributes",
			spanName: "saga-step",
			attrs: []attribute.KeyValue{
				attribute.String("saga.step", "publishing"),
				attribute.String("task.id", "task-123"),
				attribute.Int("retry.count", 2),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			newCtx, span := StartSpan(ctx, tt.spanName, tt.attrs...)

			if newCtx == nil {
				t.Error("StartSpan() returned nil context")
			}
			if span == nil {
				t.Error("StartSpan() returned nil span")
			}

			// Verify span is in context
			spanFromCtx := oteltrace.SpanFromContext(newCtx)
			if spanFromCtx == nil {
				t.Error("StartSpan() span not found in returned context")
			}

			span.End()
		})
	}
}

func TestSetSpanError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	tests := []struct {
		name    string
		err     error
		hasSpan bool
	}{
		{
			name:    "error with span in context",
			err:     context.DeadlineExceeded,
			hasSpan: true,
		},
		{
			name:    "error without span in context",
			err:     context.Canceled,
			hasSpan: false,
		},
		{
			name:    "nil error with span",
			err:     nil,
			hasSpan: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			if tt.hasSpan {
				var span oteltrace.Span
				ctx, span = StartSpan(ctx, "test-span")
				defer span.End()
			}

			// This should not panic regardless of whether span exists or error is nil
			SetSpanError(ctx, tt.err)
		})
	}
}

func TestGetTraceID(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	tests := []struct {
		name    string
		hasSpan bool
	}{
		{
			name:    "context with valid span",
			hasSpan: true,
		},
		{
			name:    "context without span",
			hasSpan: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			if tt.hasSpan {
				var span oteltrace.Span
				ctx, span = StartSpan(ctx, "test-span")
				defer span.End()
			}

			traceID := GetTraceID(ctx)

			if tt.hasSpan {
				if traceID == "" {
					t.Error("GetTraceID() returned empty string for context with span")
				}
				if len(traceID) != 32 { // Trace ID should be 32 hex characters
					t.Errorf("GetTraceID() returned trace ID with unexpected length: got %d, want 32", len(traceID))
				}
			} else {
				if traceID != "" {
					t.Errorf("GetTraceID() returned %q for context without span, want empty string", traceID)
				}
			}
		})
	}
}

func TestPropagateTraceToQueue(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tests := []struct {
		name    string
		hasSpan bool
	}{
		{
			name:    "context with active span",
			hasSpan: true,
		},
		{
			name:    "context without span",
			hasSpan: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			if tt.hasSpan {
				var span oteltrace.Span
				ctx, span = StartSpan(ctx, "test-span")
				defer span.End()
			}

			headers := PropagateTraceToQueue(ctx)

			if headers == nil {
				t.Error("PropagateTraceToQueue() returned nil headers")
			}

			if tt.hasSpan {
				if len(headers) == 0 {
					t.Error("PropagateTraceToQueue() returned empty headers for context with span")
				}

				found := false
				for key := range headers {
					if strings.Contains(strings.ToLower(key), "trace") {
						found = true
						break
					}
				}
				if !found {
					t.Error("PropagateTraceToQueue() did not include trace context headers")
				}
			}
		})
	}
}

func TestExtractTraceFromQueue(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{
			name:    "empty headers",
			headers: map[string]string{},
		},
		{
			name: "headers with trace context",
			headers: map[string]string{
				"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			},
		},
		{
			name: "headers with trace context and baggage",
			headers: map[string]string{
				"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
				"baggage":     "key1=value1,key2=value2",
			},
		},
		{
			name: "headers with invalid trace context",
			headers: map[string]string{
				"traceparent": "invalid-trace-context",
			},
		},
		{
			name:    "nil headers",
			headers: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			// This should not panic regardless of header content
			newCtx := ExtractTraceFromQueue(ctx, tt.headers)

			if newCtx == nil {
				t.Error("ExtractTraceFromQueue() returned nil context")
			}
		})
	}
}

func TestTraceRoundTrip(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Create a span and propagate it
	ctx := context.Background()
	ctx, span := StartSpan(ctx, "test-operation")
	defer span.End()

	originalTraceID := GetTraceID(ctx)
	if originalTraceID == "" {
		t.Fatal("Failed to get trace ID from original context")
	}

	// Propagate through queue message headers
	headers := PropagateTraceToQueue(ctx)
	if len(headers) == 0 {
		t.Fatal("PropagateTraceToQueue() returned empty headers")
	}

	// Extract on the consuming side
	newCtx := ExtractTraceFromQueue(context.Background(), headers)

	// Start a child span to activate the trace context
	newCtx, childSpan := StartSpan(newCtx, "child-operation")
	defer childSpan.End()

	extractedTraceID := GetTraceID(newCtx)

	// The trace ID should be the same after round-trip
	if extractedTraceID != originalTraceID {
		t.Errorf("Trace ID changed during round-trip: original=%s, extracted=%s", originalTraceID, extractedTraceID)
	}
}

func TestTracerNameConstant(t *testing.T) {
	expected := "github.com/markethub/markethub"
	if TracerName != expected {
		t.Errorf("TracerName constant = %q, want %q", TracerName, expected)
	}
}
