package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/coderag/internal/config"
	"github.com/fyrsmithlabs/coderag/internal/logging"
)

// TestTelemetry is an enabled Telemetry backed by in-memory exporters.
type TestTelemetry struct {
	*Telemetry

	Spans  *tracetest.InMemoryExporter
	Reader *sdkmetric.ManualReader
}

// NewTestTelemetry installs in-memory providers as the otel globals.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1, ServiceName: "coderag-test"}
	tel, err := New(context.Background(), cfg, "test", logging.NewNop(),
		WithSpanExporter(spans), WithMetricReader(reader))
	if err != nil {
		tb.Fatalf("telemetry: %v", err)
	}
	tb.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return &TestTelemetry{Telemetry: tel, Spans: spans, Reader: reader}
}

// EndedSpans flushes the batcher and returns what it exported.
func (t *TestTelemetry) EndedSpans(tb testing.TB) tracetest.SpanStubs {
	tb.Helper()
	if err := t.tracerProvider.ForceFlush(context.Background()); err != nil {
		tb.Fatalf("flush spans: %v", err)
	}
	return t.Spans.GetSpans()
}

// AssertSpanAttribute fails unless a span named spanName carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName, key string, want any) {
	tb.Helper()
	for _, s := range t.EndedSpans(tb) {
		if s.Name != spanName {
			continue
		}
		for _, attr := range s.Attributes {
			if string(attr.Key) == key {
				if got := attr.Value.AsInterface(); got != want {
					tb.Errorf("span %q attribute %q: got %v, want %v", spanName, key, got, want)
				}
				return
			}
		}
		tb.Errorf("span %q missing attribute %q", spanName, key)
		return
	}
	tb.Errorf("span %q not recorded", spanName)
}

// Collect reads the current metric state.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

// Int64Sum totals every data point of a named int64 counter.
func Int64Sum(rm metricdata.ResourceMetrics, name string, filter ...attribute.KeyValue) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if matches(dp.Attributes, filter) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(set attribute.Set, filter []attribute.KeyValue) bool {
	for _, kv := range filter {
		v, ok := set.Value(kv.Key)
		if !ok || v.AsInterface() != kv.Value.AsInterface() {
			return false
		}
	}
	return true
}
