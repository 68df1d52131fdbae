package embeddings

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend returns deterministic token vectors derived from the text.
type fakeBackend struct {
	dim     int
	loadErr error
	err     error
	loads   atomic.Int32
	closed  bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Load(context.Context) error {
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeBackend) TokenVectors(_ context.Context, text string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := make([][]float32, 0, len(text))
	for i, r := range text {
		row := make([]float32, f.dim)
		for j := range row {
			row[j] = float32((int(r)*(j+1)+i)%17) - 8
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func newReadyClient(t *testing.T, dim int) *Client {
	t.Helper()
	c, err := NewClient(&fakeBackend{dim: dim}, dim, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}

func TestClient_EmbedBeforeInitialize(t *testing.T) {
	c, err := NewClient(&fakeBackend{dim: 8}, 8, nil)
	require.NoError(t, err)
	assert.False(t, c.IsReady())

	_, err = c.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrEmbeddingFailed))
}

func TestClient_InitializeOnce(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	c, err := NewClient(backend, 4, nil)
	require.NoError(t, err)

	require.NoError(t, c.Initialize(context.Background()))
	assert.True(t, c.IsReady())
	assert.ErrorIs(t, c.Initialize(context.Background()), ErrAlreadyInitialized)
	assert.Equal(t, int32(1), backend.loads.Load())

	require.NoError(t, c.Close())
	assert.True(t, backend.closed)
	assert.False(t, c.IsReady())
}

func TestClient_InitializeFailureLeavesNotReady(t *testing.T) {
	c, err := NewClient(&fakeBackend{dim: 4, loadErr: ErrUnavailable}, 4, nil)
	require.NoError(t, err)

	err = c.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, c.IsReady())
}

func TestClient_UnitNormAndFixedLength(t *testing.T) {
	const dim = 32
	c := newReadyClient(t, dim)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		b := make([]byte, 1+rng.Intn(200))
		for j := range b {
			b[j] = byte('a' + rng.Intn(26))
		}
		vec, err := c.Embed(context.Background(), string(b))
		require.NoError(t, err)
		require.Len(t, vec, dim)
		assert.InDelta(t, 1.0, Norm(vec), 1e-5)
	}
}

func TestClient_Deterministic(t *testing.T) {
	c := newReadyClient(t, 16)

	a, err := c.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClient_Errors(t *testing.T) {
	c := newReadyClient(t, 8)
	_, err := c.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	mismatch, err := NewClient(&fakeBackend{dim: 4}, 8, nil)
	require.NoError(t, err)
	require.NoError(t, mismatch.Initialize(context.Background()))
	_, err = mismatch.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	failing, err := NewClient(&fakeBackend{dim: 4, err: ErrUnavailable}, 4, nil)
	require.NoError(t, err)
	require.NoError(t, failing.Initialize(context.Background()))
	_, err = failing.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMeanPool(t *testing.T) {
	got, err := MeanPool([][]float32{{1, 2, 3}, {3, 4, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, got)

	_, err = MeanPool(nil)
	assert.Error(t, err)
	_, err = MeanPool([][]float32{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	require.NoError(t, Normalize(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	assert.Error(t, Normalize([]float32{0, 0}))
	assert.Error(t, Normalize([]float32{float32(math.NaN()), 1}))
}
