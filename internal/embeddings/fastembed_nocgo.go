//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrFastEmbedNotAvailable is returned when the binary was built without cgo.
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (built without cgo, use the tei or openai provider)")

// FastEmbedConfig configures a local ONNX model.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedBackend is a stub for builds without cgo.
type FastEmbedBackend struct{}

// NewFastEmbedBackend always fails without cgo.
func NewFastEmbedBackend(FastEmbedConfig) (*FastEmbedBackend, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (b *FastEmbedBackend) Name() string { return "fastembed" }
func (b *FastEmbedBackend) Load(context.Context) error { return ErrFastEmbedNotAvailable }
func (b *FastEmbedBackend) Close() error { return nil }
func (b *FastEmbedBackend) TokenVectors(context.Context, string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}
