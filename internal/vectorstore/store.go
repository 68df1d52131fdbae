// Package vectorstore owns collections of embedded chunks and the protocol
// used to write and search them.
//
// Client layers the write policy on top of a Backend: minimum spacing
// between upserts, a bounded retry loop for transient network failures,
// payload size accounting, and metrics. Backends only translate calls to a
// concrete store (Qdrant over gRPC, or chromem-go in process).
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"syscall"

	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates a vector of the wrong size for its collection.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

const (
	// DefaultDimension matches 1024-wide models such as bge-large.
	DefaultDimension = 1024

	// DefaultSearchLimit is the number of results returned when limit <= 0.
	DefaultSearchLimit = 5

	// Reserved payload keys written by Client.
	PayloadSize      = "_size"
	PayloadTimestamp = "_timestamp"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Point is one stored vector with its payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// SearchResult is one hit, with the payload exactly as stored.
type SearchResult struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// Backend is a concrete vector store. Implementations use cosine distance.
type Backend interface {
	// CreateCollection creates an empty collection of vectors of size dim.
	CreateCollection(ctx context.Context, name string, dim int) error
	// DeleteCollection removes a collection. ErrCollectionNotFound if absent.
	DeleteCollection(ctx context.Context, name string) error
	// Upsert inserts or replaces the point with p.ID.
	Upsert(ctx context.Context, collection string, p Point) error
	// Search returns up to limit points by descending cosine similarity.
	// ErrCollectionNotFound if the collection does not exist.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)
	// Count returns the number of points in a collection.
	Count(ctx context.Context, collection string) (int, error)
	// Health checks the store is reachable.
	Health(ctx context.Context) error
	Close() error
}

// ValidateCollectionName enforces lowercase alphanumerics and underscores,
// 1 to 64 characters.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

// IsTransientError reports whether err is a network-class failure that may
// succeed if repeated: connection reset or refused, broken pipe, unexpected
// EOF, I/O timeout, or the gRPC codes Unavailable, DeadlineExceeded, Aborted
// and ResourceExhausted. Every other error is permanent.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
