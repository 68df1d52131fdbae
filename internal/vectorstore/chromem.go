package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the on-disk location. Empty keeps everything in memory.
	Path     string
	Compress bool
}

// errNoEmbeddingFunc guards against chromem computing embeddings itself.
// Every point carries a vector computed by the embeddings client.
var errNoEmbeddingFunc = errors.New("chromem embedding func must not be called")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// ChromemBackend stores points in process with chromem-go, optionally
// persisted to disk. It needs no server.
type ChromemBackend struct {
	db *chromem.DB

	mu   sync.RWMutex
	dims map[string]int
}

// NewChromemBackend opens (or creates) the database described by cfg.
func NewChromemBackend(cfg ChromemConfig) (*ChromemBackend, error) {
	if cfg.Path == "" {
		return &ChromemBackend{db: chromem.NewDB(), dims: map[string]int{}}, nil
	}

	path := cfg.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: expanding %s: %v", ErrInvalidConfig, path, err)
		}
		path = filepath.Join(home, path[2:])
	}
	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database at %s: %w", path, err)
	}
	return &ChromemBackend{db: db, dims: map[string]int{}}, nil
}

// CreateCollection creates an empty collection. chromem always ranks by
// cosine similarity.
func (b *ChromemBackend) CreateCollection(_ context.Context, name string, dim int) error {
	metadata := map[string]string{"dimension": strconv.Itoa(dim)}
	if _, err := b.db.CreateCollection(name, metadata, noEmbedding); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	b.mu.Lock()
	b.dims[name] = dim
	b.mu.Unlock()
	return nil
}

// DeleteCollection removes a collection and its persisted files.
func (b *ChromemBackend) DeleteCollection(_ context.Context, name string) error {
	if b.db.GetCollection(name, noEmbedding) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := b.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	b.mu.Lock()
	delete(b.dims, name)
	b.mu.Unlock()
	return nil
}

// Upsert adds p, replacing a document with the same id.
func (b *ChromemBackend) Upsert(ctx context.Context, collection string, p Point) error {
	c := b.db.GetCollection(collection, noEmbedding)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	b.mu.RLock()
	dim, known := b.dims[collection]
	b.mu.RUnlock()
	if known && len(p.Vector) != dim {
		return fmt.Errorf("%w: collection %s expects %d, got %d", ErrDimensionMismatch, collection, dim, len(p.Vector))
	}

	metadata, err := encodeMetadata(p.Payload)
	if err != nil {
		return err
	}
	content, _ := p.Payload["content"].(string)

	// chromem retains the slice it is given.
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)

	return c.AddDocument(ctx, chromem.Document{
		ID:        strconv.FormatUint(p.ID, 10),
		Metadata:  metadata,
		Embedding: vec,
		Content:   content,
	})
}

// Search queries by embedding. An empty collection yields no results.
func (b *ChromemBackend) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	c := b.db.GetCollection(collection, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	count := c.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	// chromem rejects nResults above the document count.
	if limit > count {
		limit = count
	}

	docs, err := c.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		id, err := strconv.ParseUint(d.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("document id %q is not numeric: %w", d.ID, err)
		}
		payload, err := decodeMetadata(d.Metadata)
		if err != nil {
			return nil, fmt.Errorf("decoding payload of %d: %w", id, err)
		}
		results = append(results, SearchResult{ID: id, Score: d.Similarity, Payload: payload})
	}
	return results, nil
}

// Count returns the number of documents in collection.
func (b *ChromemBackend) Count(_ context.Context, collection string) (int, error) {
	c := b.db.GetCollection(collection, noEmbedding)
	if c == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	return c.Count(), nil
}

// Health always succeeds for an open database.
func (b *ChromemBackend) Health(context.Context) error {
	return nil
}

// Close is a no-op; persisted writes are flushed per document.
func (b *ChromemBackend) Close() error {
	return nil
}

// encodeMetadata stores each payload value as JSON text, since chromem
// metadata is string-valued.
func encodeMetadata(payload map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		out[k] = string(raw)
	}
	return out, nil
}

// decodeMetadata reverses encodeMetadata. Integral numbers come back as
// int64 and the rest as float64, matching the Qdrant backend.
func decodeMetadata(metadata map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(metadata))
	for k, raw := range metadata {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			}
		}
		out[k] = v
	}
	return out, nil
}
