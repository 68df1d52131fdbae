//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures a local ONNX model.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedBackend runs a BGE-family model in process. The model pools
// internally, so TokenVectors returns a single row.
type FastEmbedBackend struct {
	cfg   FastEmbedConfig
	model fastembed.EmbeddingModel

	mu    sync.RWMutex
	embed *fastembed.FlagEmbedding
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedBackend validates the model name. Files are fetched by Load.
func NewFastEmbedBackend(cfg FastEmbedConfig) (*FastEmbedBackend, error) {
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = 512
	}
	return &FastEmbedBackend{cfg: cfg, model: model}, nil
}

// Name implements Backend.
func (b *FastEmbedBackend) Name() string {
	return "fastembed:" + b.cfg.Model
}

// Load downloads (first run) and opens the ONNX model.
func (b *FastEmbedBackend) Load(context.Context) error {
	showProgress := false
	embed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                b.model,
		CacheDir:             b.cfg.CacheDir,
		MaxLength:            b.cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return fmt.Errorf("%w: initializing fastembed: %v", ErrUnavailable, err)
	}
	b.mu.Lock()
	b.embed = embed
	b.mu.Unlock()
	return nil
}

// TokenVectors implements Backend.
func (b *FastEmbedBackend) TokenVectors(ctx context.Context, text string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.embed == nil {
		return nil, ErrNotInitialized
	}
	out, err := b.embed.PassageEmbed([]string{text}, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return out, nil
}

// Close implements Backend.
func (b *FastEmbedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.embed == nil {
		return nil
	}
	err := b.embed.Destroy()
	b.embed = nil
	return err
}
