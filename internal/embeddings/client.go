// Package embeddings turns text into L2-normalized vectors of a fixed size.
//
// A Client wraps one Backend. Backends return token-level vectors (TEI
// /embed_all) or an already pooled sentence vector as a single row (OpenAI,
// FastEmbed). The Client mean-pools the rows and L2-normalizes the result, so
// callers never see raw backend output.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

var (
	// ErrNotInitialized is a programmer error: Embed was called before Initialize.
	ErrNotInitialized = errors.New("embedding client used before Initialize")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("embedding client already initialized")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the backend could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrUnavailable indicates the backend could not be reached or is overloaded.
	ErrUnavailable = errors.New("embedding backend unavailable")

	// ErrDimensionMismatch indicates the backend returned a vector of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/coderag/internal/embeddings")

// Backend is one embedding model.
type Backend interface {
	// Name identifies the backend and model in logs and metrics.
	Name() string
	// Load prepares the model. Called once by Client.Initialize.
	Load(ctx context.Context) error
	// TokenVectors returns one row per token, or a single pooled row.
	TokenVectors(ctx context.Context, text string) ([][]float32, error)
	// Close releases model resources.
	Close() error
}

// Client is the only way the rest of coderag obtains embeddings.
type Client struct {
	backend   Backend
	dimension int
	logger    *logging.Logger
	metrics   *Metrics

	mu    sync.RWMutex
	ready bool
}

// NewClient wraps backend. dimension is the expected vector length.
func NewClient(backend Backend, dimension int, logger *logging.Logger) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidConfig)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be > 0", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		backend:   backend,
		dimension: dimension,
		logger:    logger,
		metrics:   NewMetrics(logger),
	}, nil
}

// Initialize loads the model. It must be called exactly once before Embed.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return ErrAlreadyInitialized
	}

	start := time.Now()
	if err := c.backend.Load(ctx); err != nil {
		return fmt.Errorf("loading embedding backend %s: %w", c.backend.Name(), err)
	}
	c.ready = true
	c.logger.Info(ctx, "embedding model loaded",
		zap.String("backend", c.backend.Name()),
		zap.Int("dimension", c.dimension),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// IsReady reports whether Initialize has completed successfully.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Dimension returns the configured vector length.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the unit-length embedding of text.
func (c *Client) Embed(ctx context.Context, text string) (vec []float32, err error) {
	if !c.IsReady() {
		return nil, ErrNotInitialized
	}
	if text == "" {
		return nil, ErrEmptyInput
	}

	ctx, span := tracer.Start(ctx, "embeddings.Embed")
	span.SetAttributes(
		attribute.String("backend", c.backend.Name()),
		attribute.Int("text_bytes", len(text)),
	)
	start := time.Now()
	defer func() {
		c.metrics.RecordGeneration(ctx, c.backend.Name(), time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := c.backend.TokenVectors(ctx, text)
	if err != nil {
		return nil, err
	}
	pooled, err := MeanPool(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(pooled) != c.dimension {
		return nil, fmt.Errorf("%w: backend %s returned %d, want %d",
			ErrDimensionMismatch, c.backend.Name(), len(pooled), c.dimension)
	}
	if err := Normalize(pooled); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return pooled, nil
}

// Close releases the backend.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	return c.backend.Close()
}
