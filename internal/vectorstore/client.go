package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/coderag/internal/logging"
)

var tracer = otel.Tracer("coderag.vectorstore")

// Options tunes the write policy of a Client. Zero values take defaults.
type Options struct {
	// UpsertInterval is the minimum spacing between consecutive upserts.
	// Default: 100ms. Negative disables spacing.
	UpsertInterval time.Duration

	// MaxAttempts bounds the attempts per call, first one included.
	// Default: 2.
	MaxAttempts int

	// RetryBackoff is the wait before the first retry. It doubles on each
	// further retry. Default: 2s.
	RetryBackoff time.Duration

	// OversizeThreshold is the payload size in bytes above which a warning
	// is logged. The point is stored regardless. Default: 10240.
	OversizeThreshold int

	// Now supplies the value of the _timestamp payload key. Default: time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.UpsertInterval == 0 {
		o.UpsertInterval = 100 * time.Millisecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.OversizeThreshold <= 0 {
		o.OversizeThreshold = 10240
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// UpsertResult describes one stored point.
type UpsertResult struct {
	ID        uint64
	Size      int
	Attempts  int
	Oversized bool
}

// Client is the single entry point for vector store access.
//
// Client is safe for concurrent use; concurrent upserts share the spacing
// budget.
type Client struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	logger  *logging.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient wraps backend with the write policy in opts.
func NewClient(backend Backend, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.UpsertInterval > 0 {
		limit = rate.Every(opts.UpsertInterval)
	}
	return &Client{
		backend: backend,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("vectorstore"),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// InitializeCollection drops any existing collection named name and creates
// an empty one for vectors of size dim using cosine distance. Everything
// previously stored under name is lost.
func (c *Client) InitializeCollection(ctx context.Context, name string, dim int) error {
	ctx, span := tracer.Start(ctx, "vectorstore.InitializeCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("dimension", dim))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}

	// A missing collection is the normal first-run case.
	if _, err := c.retry(ctx, "delete_collection", func() error {
		return c.backend.DeleteCollection(ctx, name)
	}); err != nil {
		c.logger.Debug(ctx, "delete before create failed",
			zap.String("collection", name), zap.Error(err))
	}

	if _, err := c.retry(ctx, "create_collection", func() error {
		return c.backend.CreateCollection(ctx, name, dim)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	c.logger.Info(ctx, "collection initialized",
		zap.String("collection", name), zap.Int("dimension", dim))
	span.SetStatus(codes.Ok, "initialized")
	return nil
}

// Upsert stores vector and payload under id, replacing any existing point.
//
// The stored payload is a copy of payload with _size set to the JSON size of
// the point and _timestamp set to Unix milliseconds unless the caller already
// provided one.
// Upserts are spaced by the configured interval and transient failures are
// retried with exponential backoff up to the attempt bound.
func (c *Client) Upsert(ctx context.Context, collection string, id uint64, vector []float32, payload map[string]any) (UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int64("id", int64(id)))

	start := time.Now()
	defer func() { operationDuration.WithLabelValues("upsert").Observe(time.Since(start).Seconds()) }()

	stored := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		stored[k] = v
	}
	if _, ok := stored[PayloadTimestamp]; !ok {
		stored[PayloadTimestamp] = c.opts.Now().UnixMilli()
	}
	delete(stored, PayloadSize)

	size, err := pointSize(id, vector, stored)
	if err != nil {
		upsertsTotal.WithLabelValues("error").Inc()
		return UpsertResult{}, fmt.Errorf("encoding point %d: %w", id, err)
	}
	stored[PayloadSize] = size

	result := UpsertResult{ID: id, Size: size}
	if size > c.opts.OversizeThreshold {
		result.Oversized = true
		oversizedTotal.Inc()
		c.logger.Warn(ctx, "payload exceeds size threshold",
			zap.String("collection", collection),
			zap.Uint64("id", id),
			zap.Int("size", size),
			zap.Int("threshold", c.opts.OversizeThreshold))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		upsertsTotal.WithLabelValues("error").Inc()
		return result, fmt.Errorf("waiting to upsert point %d: %w", id, err)
	}

	point := Point{ID: id, Vector: vector, Payload: stored}
	attempts, err := c.retry(ctx, "upsert", func() error {
		return c.backend.Upsert(ctx, collection, point)
	})
	result.Attempts = attempts
	span.SetAttributes(attribute.Int("attempts", attempts), attribute.Int("size", size))
	if err != nil {
		upsertsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("upserting point %d into %s: %w", id, collection, err)
	}

	upsertsTotal.WithLabelValues("success").Inc()
	span.SetStatus(codes.Ok, "stored")
	return result, nil
}

// pointSize is the byte length of the JSON form of the whole point.
func pointSize(id uint64, vector []float32, payload map[string]any) (int, error) {
	b, err := json.Marshal(struct {
		ID      uint64         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}{id, vector, payload})
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Search returns up to limit points nearest to vector, highest score first.
// limit <= 0 means DefaultSearchLimit. An existing but empty collection
// yields an empty slice; a missing one yields ErrCollectionNotFound.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()

	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("limit", limit))

	start := time.Now()
	defer func() { operationDuration.WithLabelValues("search").Observe(time.Since(start).Seconds()) }()

	var results []SearchResult
	_, err := c.retry(ctx, "search", func() error {
		var err error
		results, err = c.backend.Search(ctx, collection, vector, limit)
		return err
	})
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []SearchResult{}
	}

	searchesTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Count returns the number of points stored in collection.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	var n int
	_, err := c.retry(ctx, "count", func() error {
		var err error
		n, err = c.backend.Count(ctx, collection)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", collection, err)
	}
	return n, nil
}

// Health checks the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.backend.Health(ctx)
}

// Close releases the backend connection.
func (c *Client) Close() error {
	return c.backend.Close()
}

// retry runs op until it succeeds, fails permanently, or the attempt bound is
// reached. It returns the number of attempts made.
func (c *Client) retry(ctx context.Context, name string, op func() error) (int, error) {
	backoff := c.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return attempt, nil
		}
		if !IsTransientError(err) {
			return attempt, err
		}
		if attempt >= c.opts.MaxAttempts {
			return attempt, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
		}

		retriesTotal.WithLabelValues(name).Inc()
		c.logger.Warn(ctx, "transient vector store failure, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := c.sleep(ctx, backoff); err != nil {
			return attempt, fmt.Errorf("%s canceled: %w", name, err)
		}
		backoff *= 2
	}
}
