package generation

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

// OpenAIGenerator uses an OpenAI-compatible chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIGenerator creates a chat completions generator. baseURL may be
// empty for the public API.
func NewOpenAIGenerator(baseURL string, apiKey config.Secret, opts Options) (*OpenAIGenerator, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if !apiKey.IsSet() {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	clientCfg := openai.DefaultConfig(apiKey.Value())
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientCfg), opts: opts}, nil
}

// Name implements Generator.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return instrument(ctx, g.Name(), g.opts.Timeout, func(ctx context.Context) (string, error) {
		req := openai.ChatCompletionRequest{
			Model:       g.opts.Model,
			Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
			Temperature: float32(g.opts.Temperature),
		}
		if g.opts.MaxTokens > 0 {
			req.MaxTokens = g.opts.MaxTokens
		}

		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", classifyOpenAIError(ctx, err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// classifyOpenAIError keeps only the status and the provider's error type.
// The raw body is dropped since some gateways echo the request headers.
func classifyOpenAIError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d (%s)", classifyStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, apiErr.Type)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d", classifyStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
