package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/coderag/internal/config"
)

func newTEIServer(t *testing.T, status int, tokens [][]float32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed_all":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer tei-key", r.Header.Get("Authorization"))
			var req teiRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Inputs, 1)
			assert.True(t, req.Truncate)
			if status != http.StatusOK {
				http.Error(w, "boom", status)
				return
			}
			_ = json.NewEncoder(w).Encode([][][]float32{tokens})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTEIBackend_MeanPoolsTokenVectors(t *testing.T) {
	srv := newTEIServer(t, http.StatusOK, [][]float32{{1, 0, 0}, {0, 3, 0}, {2, 0, 0}})
	backend, err := NewTEIBackend(TEIConfig{BaseURL: srv.URL + "/", Model: "bge", APIKey: config.Secret("tei-key")})
	require.NoError(t, err)

	c, err := NewClient(backend, 3, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))

	vec, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	// mean = (1, 1, 0), normalized = (1/sqrt2, 1/sqrt2, 0)
	assert.InDelta(t, 0.70710678, vec[0], 1e-6)
	assert.InDelta(t, 0.70710678, vec[1], 1e-6)
	assert.InDelta(t, 0.0, vec[2], 1e-6)
}

func TestTEIBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, ErrUnavailable},
		{http.StatusTooManyRequests, ErrUnavailable},
		{http.StatusBadRequest, ErrEmbeddingFailed},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newTEIServer(t, tt.status, nil)
			backend, err := NewTEIBackend(TEIConfig{BaseURL: srv.URL, APIKey: config.Secret("tei-key")})
			require.NoError(t, err)

			_, err = backend.TokenVectors(context.Background(), "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTEIBackend_LoadFailsWhenDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	backend, err := NewTEIBackend(TEIConfig{BaseURL: url})
	require.NoError(t, err)
	assert.ErrorIs(t, backend.Load(context.Background()), ErrUnavailable)
}

func TestNewTEIBackend_RequiresURL(t *testing.T) {
	_, err := NewTEIBackend(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
