package embeddings

import (
	"fmt"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

// NewBackend builds the backend named by cfg.Provider.
func NewBackend(cfg config.EmbeddingsConfig) (Backend, error) {
	switch cfg.Provider {
	case "tei":
		return NewTEIBackend(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout.Duration(),
		})
	case "openai":
		return NewOpenAIBackend(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			Dimensions: cfg.Dimension,
		})
	case "fastembed":
		return NewFastEmbedBackend(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
