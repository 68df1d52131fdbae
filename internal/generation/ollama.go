package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LLMGenerator adapts any langchaingo model. NewOllamaGenerator builds one
// for a local Ollama server.
type LLMGenerator struct {
	model llms.Model
	name  string
	opts  Options
}

// NewOllamaGenerator connects to Ollama at serverURL (empty for the default
// http://localhost:11434).
func NewOllamaGenerator(serverURL string, opts Options) (*LLMGenerator, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	llmOpts := []ollama.Option{ollama.WithModel(opts.Model)}
	if serverURL != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return NewLLMGenerator("ollama", llm, opts), nil
}

// NewLLMGenerator wraps model under the given provider name.
func NewLLMGenerator(name string, model llms.Model, opts Options) *LLMGenerator {
	return &LLMGenerator{model: model, name: name, opts: opts}
}

// Name implements Generator.
func (g *LLMGenerator) Name() string {
	return g.name
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return instrument(ctx, g.name, g.opts.Timeout, func(ctx context.Context) (string, error) {
		callOpts := []llms.CallOption{llms.WithTemperature(g.opts.Temperature)}
		if g.opts.MaxTokens > 0 {
			callOpts = append(callOpts, llms.WithMaxTokens(g.opts.MaxTokens))
		}
		text, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, callOpts...)
		if err != nil {
			return "", classifyLLMError(ctx, err)
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

// classifyLLMError sorts langchaingo errors by message, since the Ollama
// client's status errors are not exported.
func classifyLLMError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "pull the model") || strings.Contains(msg, "forbidden"):
		return fmt.Errorf("%w: %v", ErrModelAccess, err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "503") || strings.Contains(msg, "overloaded"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
}
