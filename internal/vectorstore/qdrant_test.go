package vectorstore

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeQdrant struct {
	created  *qdrant.CreateCollection
	upserted *qdrant.UpsertPoints
	queried  *qdrant.QueryPoints
	scored   []*qdrant.ScoredPoint
	queryErr error
	count    uint64
}

func (f *fakeQdrant) CreateCollection(_ context.Context, r *qdrant.CreateCollection) error {
	f.created = r
	return nil
}

func (f *fakeQdrant) DeleteCollection(context.Context, string) error {
	return status.Error(grpccodes.NotFound, "Collection `x` doesn't exist!")
}

func (f *fakeQdrant) Upsert(_ context.Context, r *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserted = r
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, r *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queried = r
	return f.scored, f.queryErr
}

func (f *fakeQdrant) Count(context.Context, *qdrant.CountPoints) (uint64, error) {
	return f.count, nil
}

func (f *fakeQdrant) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeQdrant) Close() error { return nil }

func TestQdrantBackend_CreateUsesCosine(t *testing.T) {
	fake := &fakeQdrant{}
	b := &QdrantBackend{client: fake}

	require.NoError(t, b.CreateCollection(context.Background(), "code_chunks", 1024))
	params := fake.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(1024), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
}

func TestQdrantBackend_UpsertConvertsPayload(t *testing.T) {
	fake := &fakeQdrant{}
	b := &QdrantBackend{client: fake}

	err := b.Upsert(context.Background(), "code_chunks", Point{
		ID:     42,
		Vector: []float32{0.6, 0.8},
		Payload: map[string]any{
			"content": "func main() {}",
			"_size":   120,
			"score":   0.5,
			"ok":      true,
		},
	})
	require.NoError(t, err)

	p := fake.upserted.GetPoints()[0]
	assert.Equal(t, uint64(42), p.GetId().GetNum())
	assert.True(t, fake.upserted.GetWait())
	assert.Equal(t, "func main() {}", p.GetPayload()["content"].GetStringValue())
	assert.Equal(t, int64(120), p.GetPayload()["_size"].GetIntegerValue())
	assert.Equal(t, 0.5, p.GetPayload()["score"].GetDoubleValue())
	assert.True(t, p.GetPayload()["ok"].GetBoolValue())
}

func TestQdrantBackend_UpsertRejectsUnsupportedPayload(t *testing.T) {
	b := &QdrantBackend{client: &fakeQdrant{}}
	err := b.Upsert(context.Background(), "c", Point{ID: 1, Payload: map[string]any{"bad": []int{1}}})
	assert.ErrorContains(t, err, "unsupported payload type")
}

func TestQdrantBackend_SearchConvertsResults(t *testing.T) {
	fake := &fakeQdrant{scored: []*qdrant.ScoredPoint{{
		Id:    qdrant.NewIDNum(3),
		Score: 0.9,
		Payload: map[string]*qdrant.Value{
			"repo":  {Kind: &qdrant.Value_StringValue{StringValue: "demo"}},
			"_size": {Kind: &qdrant.Value_IntegerValue{IntegerValue: 99}},
		},
	}}}
	b := &QdrantBackend{client: fake}

	results, err := b.Search(context.Background(), "code_chunks", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(3), results[0].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)
	assert.Equal(t, "demo", results[0].Payload["repo"])
	assert.Equal(t, int64(99), results[0].Payload["_size"])
	assert.Equal(t, uint64(4), fake.queried.GetLimit())
}

func TestQdrantBackend_NotFoundMapsToSentinel(t *testing.T) {
	fake := &fakeQdrant{queryErr: status.Error(grpccodes.NotFound, "Collection `x` doesn't exist!")}
	b := &QdrantBackend{client: fake}

	_, err := b.Search(context.Background(), "x", []float32{1}, 1)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, b.DeleteCollection(context.Background(), "x"), ErrCollectionNotFound)
}

func TestQdrantBackend_TransientErrorsSurviveMapping(t *testing.T) {
	fake := &fakeQdrant{queryErr: status.Error(grpccodes.Unavailable, "down")}
	b := &QdrantBackend{client: fake}

	_, err := b.Search(context.Background(), "x", []float32{1}, 1)
	assert.True(t, IsTransientError(err))
}

// echoQdrant answers every query with the last upserted point.
type echoQdrant struct {
	fakeQdrant
}

func (f *echoQdrant) Query(_ context.Context, r *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queried = r
	if f.upserted == nil {
		return nil, nil
	}
	p := f.upserted.GetPoints()[0]
	return []*qdrant.ScoredPoint{{Id: p.GetId(), Score: 1, Payload: p.GetPayload()}}, nil
}

func TestClient_TimestampIsUnixMillis(t *testing.T) {
	backends := map[string]func(t *testing.T) Backend{
		"chromem": func(t *testing.T) Backend { return newMemoryBackend(t) },
		"qdrant":  func(*testing.T) Backend { return &QdrantBackend{client: &echoQdrant{}} },
	}
	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestClient(t, newBackend(t), nil)
			require.NoError(t, c.InitializeCollection(ctx, "code_chunks", 2))

			_, err := c.Upsert(ctx, "code_chunks", 1, unit(1, 0), map[string]any{"content": "x"})
			require.NoError(t, err)

			results, err := c.Search(ctx, "code_chunks", unit(1, 0), 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			ts := results[0].Payload[PayloadTimestamp]
			require.IsType(t, int64(0), ts)
			assert.Equal(t, fixedNow.UnixMilli(), ts)
		})
	}
}
