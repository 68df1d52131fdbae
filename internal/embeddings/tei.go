package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

// TEIConfig configures a Text Embeddings Inference server.
type TEIConfig struct {
	BaseURL string
	Model   string
	APIKey  config.Secret
	Timeout time.Duration
}

// TEIBackend calls TEI's /embed_all endpoint, which returns per-token vectors
// without server-side pooling.
type TEIBackend struct {
	cfg    TEIConfig
	client *http.Client
}

// NewTEIBackend creates a TEI backend.
func NewTEIBackend(cfg TEIConfig) (*TEIBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TEIBackend{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Name implements Backend.
func (b *TEIBackend) Name() string {
	return "tei:" + b.cfg.Model
}

// Load checks that the server is up and serving.
func (b *TEIBackend) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	b.authorize(req)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// TokenVectors implements Backend.
func (b *TEIBackend) TokenVectors(ctx context.Context, text string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: []string{text}, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/embed_all", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, msg)
	}

	var out [][][]float32
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(out) != 1 || len(out[0]) == 0 {
		return nil, fmt.Errorf("%w: expected token vectors for 1 input, got %d inputs", ErrEmbeddingFailed, len(out))
	}
	return out[0], nil
}

// Close implements Backend.
func (b *TEIBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *TEIBackend) authorize(req *http.Request) {
	if b.cfg.APIKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey.Value())
	}
}
