package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

// OpenAIConfig configures an OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	APIKey     config.Secret
	Dimensions int
}

// OpenAIBackend returns the provider's pooled sentence vector as one row.
type OpenAIBackend struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey.Value())
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}, nil
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string {
	return "openai:" + string(b.model)
}

// Load is a no-op; the hosted model needs no preparation.
func (b *OpenAIBackend) Load(context.Context) error {
	return nil
}

// TokenVectors implements Backend.
func (b *OpenAIBackend) TokenVectors(ctx context.Context, text string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          b.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if b.dimensions > 0 {
		req.Dimensions = b.dimensions
	}

	resp, err := b.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrEmbeddingFailed)
	}
	return [][]float32{resp.Data[0].Embedding}, nil
}

// Close implements Backend.
func (b *OpenAIBackend) Close() error {
	return nil
}

// classifyOpenAIError separates overload and outage from other failures.
// Response bodies are not echoed because some providers reflect the key.
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	return fmt.Errorf("%w: status %d", ErrEmbeddingFailed, status)
}
