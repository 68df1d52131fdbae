// Package query answers questions from indexed code: embed the question,
// retrieve the nearest chunks, and ask the generation model to answer from
// them.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/vectorstore"
)

// MaxQuestionLength bounds a question in characters.
const MaxQuestionLength = 4096

var tracer = otel.Tracer("coderag.query")

var answersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "coderag",
		Subsystem: "query",
		Name:      "answers_total",
		Help:      "Questions answered, by outcome",
	},
	[]string{"outcome"},
)

// Embedder turns the question into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher retrieves the chunks nearest to a vector.
type Searcher interface {
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.SearchResult, error)
}

// Generator produces the answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config controls retrieval.
type Config struct {
	Collection string
	// TopK is the number of chunks placed in the context. Default 5.
	TopK int
	// Timeout bounds a whole Answer call. Zero means no bound beyond ctx.
	Timeout time.Duration
	// Repositories are named in the prompt. When empty, the repositories of
	// the retrieved chunks are used.
	Repositories []string
}

// Source identifies one chunk used as context.
type Source struct {
	Repo       string  `json:"repo"`
	Path       string  `json:"path"`
	Score      float32 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// Answer is the result of a question.
type Answer struct {
	Answer  string   `json:"answer"`
	Context string   `json:"context"`
	Sources []Source `json:"sources"`
}

// Engine answers questions. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	embedder  Embedder
	searcher  Searcher
	generator Generator
	logger    *logging.Logger
}

// New creates an Engine.
func New(cfg Config, embedder Embedder, searcher Searcher, generator Generator, logger *logging.Logger) (*Engine, error) {
	if embedder == nil || searcher == nil || generator == nil {
		return nil, errors.New("query: embedder, searcher and generator are required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("query: collection is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = vectorstore.DefaultSearchLimit
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		logger:    logger.Named("query"),
	}, nil
}

// Answer answers question from the indexed collection.
//
// Errors are classified: ErrInvalidQuestion, ErrNotIndexed,
// ErrNoRelevantContext and ErrTimeout are defined here, and generation
// failures keep their generation error class. UserMessage renders any of
// them for display.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "query.Answer")
	defer span.End()

	ans, err := e.answer(ctx, question)
	outcome := outcomeLabel(err)
	answersTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetStatus(codes.Ok, outcome)
	return ans, nil
}

func (e *Engine) answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidQuestion)
	}
	if n := utf8.RuneCountInString(question); n > MaxQuestionLength {
		return nil, fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidQuestion, n, MaxQuestionLength)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, e.wrap(ctx, "embedding question", err)
	}

	results, err := e.searcher.Search(ctx, e.cfg.Collection, vec, e.cfg.TopK)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotIndexed, err)
		}
		return nil, e.wrap(ctx, "searching", err)
	}
	if len(results) == 0 {
		e.logger.Info(ctx, "no chunks matched question", zap.String("collection", e.cfg.Collection))
		return nil, ErrNoRelevantContext
	}

	// Backends already order by score; keep it explicit since the context
	// order is part of the prompt.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	contextText := buildContext(results)
	prompt, err := buildPrompt(e.repositories(results), contextText, question)
	if err != nil {
		return nil, err
	}

	text, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, e.wrap(ctx, "generating answer", err)
	}

	ans := &Answer{Answer: extractAnswer(text), Context: contextText, Sources: sources(results)}
	e.logger.Debug(ctx, "question answered",
		zap.Int("chunks", len(results)),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("answer_bytes", len(ans.Answer)))
	return ans, nil
}

// wrap marks failures caused by the Answer deadline as ErrTimeout.
func (e *Engine) wrap(ctx context.Context, step string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (e *Engine) repositories(results []vectorstore.SearchResult) []string {
	if len(e.cfg.Repositories) > 0 {
		return e.cfg.Repositories
	}
	seen := map[string]bool{}
	var names []string
	for _, r := range results {
		if name, ok := r.Payload["repo"].(string); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func sources(results []vectorstore.SearchResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		s := Source{Score: r.Score}
		s.Repo, _ = r.Payload["repo"].(string)
		s.Path, _ = r.Payload["path"].(string)
		switch idx := r.Payload["chunk_index"].(type) {
		case int64:
			s.ChunkIndex = int(idx)
		case int:
			s.ChunkIndex = idx
		case float64:
			s.ChunkIndex = int(idx)
		}
		out = append(out, s)
	}
	return out
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "answered"
	case errors.Is(err, ErrInvalidQuestion):
		return "invalid_question"
	case errors.Is(err, ErrNotIndexed):
		return "not_indexed"
	case errors.Is(err, ErrNoRelevantContext):
		return "no_context"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
