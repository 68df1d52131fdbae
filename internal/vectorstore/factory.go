package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/coderag/internal/config"
	"github.com/fyrsmithlabs/coderag/internal/logging"
)

// NewBackend creates the backend named by cfg.Provider.
func NewBackend(cfg config.VectorStoreConfig) (Backend, error) {
	switch cfg.Provider {
	case "qdrant", "":
		return NewQdrantBackend(QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey.Value(),
			UseTLS: cfg.Qdrant.UseTLS,
		})
	case "chromem":
		return NewChromemBackend(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// NewFromConfig creates a Client over the configured backend.
func NewFromConfig(cfg config.VectorStoreConfig, logger *logging.Logger) (*Client, error) {
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(backend, Options{
		UpsertInterval:    cfg.UpsertInterval.Duration(),
		MaxAttempts:       cfg.MaxAttempts,
		RetryBackoff:      cfg.RetryBackoff.Duration(),
		OversizeThreshold: cfg.OversizeThreshold,
	}, logger), nil
}
