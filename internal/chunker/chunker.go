// Package chunker splits Documents into overlapping token windows.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/repository"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

var (
	// ErrInvalidWindow is returned for a chunk size or overlap that cannot advance.
	ErrInvalidWindow = errors.New("overlap must be >= 0 and smaller than chunk size")

	// ErrUntokenizable marks content the tokenizer cannot handle.
	ErrUntokenizable = errors.New("content cannot be tokenized")
)

// Chunk is one window of a Document. Metadata is the Document's, unchanged.
type Chunk struct {
	Content  string
	Metadata repository.Metadata
	// Index is the position of the chunk within its Document.
	Index int
	// StartToken and EndToken bound the window as [StartToken, EndToken).
	StartToken int
	EndToken   int
}

// Chunker emits windows of chunkSize tokens advancing by chunkSize-overlap.
type Chunker struct {
	tokenizer Tokenizer
	chunkSize int
	overlap   int
	logger    *logging.Logger
}

// New creates a chunker. The overlap must be smaller than the chunk size.
func New(tokenizer Tokenizer, chunkSize, overlap int, logger *logging.Logger) (*Chunker, error) {
	if tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d", ErrInvalidWindow, chunkSize, overlap)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chunker{tokenizer: tokenizer, chunkSize: chunkSize, overlap: overlap, logger: logger}, nil
}

// Split windows one Document. Empty content yields no chunks. Content shorter
// than the chunk size yields exactly one chunk equal to the content.
//
// A window edge that falls inside a multi-byte rune moves inward to the
// nearest rune boundary, so a chunk never holds bytes of tokens outside its
// window. If that would leave a rune in no chunk at all, which needs an overlap
// smaller than the tokens the rune spans, the rune opens the next chunk
// instead.
func (c *Chunker) Split(doc repository.Document) ([]Chunk, error) {
	tokens, err := c.tokenizer.Tokenize(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize %s/%s: %w", doc.Metadata.Repo, doc.Metadata.Path, err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	text := strings.Join(tokens, "")
	offsets := make([]int, len(tokens)+1)
	for i, tok := range tokens {
		offsets[i+1] = offsets[i] + len(tok)
	}

	step := c.chunkSize - c.overlap
	chunks := make([]Chunk, 0, len(tokens)/step+1)
	covered := 0
	for start := 0; ; start += step {
		end := min(start+c.chunkSize, len(tokens))
		lo, hi := offsets[start], offsets[end]
		for lo < hi && !utf8.RuneStart(text[lo]) {
			lo++
		}
		for hi < len(text) && hi > lo && !utf8.RuneStart(text[hi]) {
			hi--
		}
		lo = min(lo, covered)
		if hi > lo {
			chunks = append(chunks, Chunk{
				Content:    text[lo:hi],
				Metadata:   doc.Metadata,
				Index:      len(chunks),
				StartToken: start,
				EndToken:   end,
			})
			covered = max(covered, hi)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// SplitAll chunks every Document in docs. A Document that fails to split is
// logged and skipped; the rest continue.
func (c *Chunker) SplitAll(ctx context.Context, docs iter.Seq[repository.Document]) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for doc := range docs {
			chunks, err := c.Split(doc)
			if err != nil {
				c.logger.Warn(ctx, "skipping document that failed to chunk",
					zap.String("path", doc.Metadata.Path), zap.Error(err))
				continue
			}
			for _, ch := range chunks {
				if !yield(ch) {
					return
				}
			}
		}
	}
}
