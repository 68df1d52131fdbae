package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/qdrant/go-client/qdrant"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection settings for the Qdrant gRPC API.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string
	// Port is the gRPC port (not the 6333 REST port). Default: 6334.
	Port   int
	APIKey string
	UseTLS bool
}

// qdrantAPI is the subset of *qdrant.Client the backend uses.
type qdrantAPI interface {
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantBackend stores points in a Qdrant server.
type QdrantBackend struct {
	client qdrantAPI
}

// NewQdrantBackend dials Qdrant. The connection is lazy; use Health to
// verify the server is reachable.
func NewQdrantBackend(cfg QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return &QdrantBackend{client: client}, nil
}

// CreateCollection creates a cosine-distance collection.
func (b *QdrantBackend) CreateCollection(ctx context.Context, name string, dim int) error {
	return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// DeleteCollection drops a collection.
func (b *QdrantBackend) DeleteCollection(ctx context.Context, name string) error {
	return mapQdrantError(b.client.DeleteCollection(ctx, name))
}

// Upsert writes one point and waits for it to be applied.
func (b *QdrantBackend) Upsert(ctx context.Context, collection string, p Point) error {
	payload, err := toQdrantPayload(p.Payload)
	if err != nil {
		return err
	}
	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}},
	})
	return mapQdrantError(err)
}

// Search runs a nearest-neighbour query.
func (b *QdrantBackend) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, mapQdrantError(err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			ID:      p.GetId().GetNum(),
			Score:   p.GetScore(),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return results, nil
}

// Count returns the exact number of points in collection.
func (b *QdrantBackend) Count(ctx context.Context, collection string) (int, error) {
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, mapQdrantError(err)
	}
	return int(n), nil
}

// Health pings the server.
func (b *QdrantBackend) Health(ctx context.Context) error {
	if _, err := b.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// mapQdrantError turns NotFound into ErrCollectionNotFound and keeps every
// other status intact so IsTransientError can inspect it.
func mapQdrantError(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, st.Message())
	}
	return err
}

func toQdrantPayload(payload map[string]any) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		val, err := toQdrantValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

func toQdrantValue(v any) (*qdrant.Value, error) {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}, nil
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}, nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}, nil
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}, nil
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

// fromQdrantPayload is the inverse of toQdrantPayload: integers come back as
// int64 and doubles as float64.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		case *qdrant.Value_NullValue:
			out[k] = nil
		}
	}
	return out
}
