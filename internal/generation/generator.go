// Package generation calls the answer-generation model.
//
// Every backend reports failures through the same error classes so callers
// can tell the end user whether the key is wrong, the model is not
// available to them, or the service is simply down.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

var tracer = otel.Tracer("coderag.generation")

// Error classes. Backends wrap one of these around every failure.
var (
	// ErrAuthentication means the credentials were rejected.
	ErrAuthentication = errors.New("generation service rejected credentials")

	// ErrModelAccess means the model does not exist or the credentials may
	// not use it.
	ErrModelAccess = errors.New("model not accessible")

	// ErrUnavailable means the service could not be reached or is overloaded.
	ErrUnavailable = errors.New("generation service unavailable")

	// ErrEmptyResponse means the service answered with no text.
	ErrEmptyResponse = errors.New("generation service returned no text")

	// ErrGenerationFailed covers every other rejected request.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidConfig indicates unusable generator settings.
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coderag",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Generation calls, by provider and result",
		},
		[]string{"provider", "result"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coderag",
			Subsystem: "generation",
			Name:      "request_duration_seconds",
			Help:      "Latency of generation calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)
)

// Generator produces the continuation of a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Options are shared by all backends.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single call. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// New creates the generator named by cfg.Provider.
func New(cfg config.GenerationConfig) (Generator, error) {
	opts := Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout.Duration(),
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, opts)
	case "ollama":
		return NewOllamaGenerator(cfg.BaseURL, opts)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// instrument runs call with a span, the per-call timeout and metrics.
func instrument(ctx context.Context, provider string, timeout time.Duration, call func(context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, "generation.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("provider", provider))

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := call(ctx)
	requestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(provider, resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	requestsTotal.WithLabelValues(provider, "success").Inc()
	span.SetAttributes(attribute.Int("response_bytes", len(text)))
	span.SetStatus(codes.Ok, "generated")
	return text, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "auth"
	case errors.Is(err, ErrModelAccess):
		return "model_access"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}

// classifyStatus maps an HTTP status from any provider to an error class.
func classifyStatus(status int) error {
	switch {
	case status == 401:
		return ErrAuthentication
	case status == 403 || status == 404:
		return ErrModelAccess
	case status == 408 || status == 429 || status >= 500:
		return ErrUnavailable
	default:
		return ErrGenerationFailed
	}
}
