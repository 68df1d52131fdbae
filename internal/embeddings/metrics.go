package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/coderag/internal/embeddings"

// Metrics holds embedding instruments. Nil instruments are skipped.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.duration, err = meter.Float64Histogram(
		"coderag.embedding.duration_seconds",
		metric.WithDescription("Duration of a single embed call including pooling"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}

	m.requests, err = meter.Int64Counter(
		"coderag.embedding.requests_total",
		metric.WithDescription("Embed calls by backend"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create requests counter", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"coderag.embedding.errors_total",
		metric.WithDescription("Failed embed calls by backend"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create errors counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one embed call.
func (m *Metrics) RecordGeneration(ctx context.Context, backend string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
