// Package indexer runs the indexing pipeline: fetch each configured
// repository, walk it, chunk every document, embed every chunk and store the
// vectors in one collection.
//
// A run is destructive. The collection is reset before anything is written,
// so every run fully replaces what the previous one stored. Failures below
// the repository boundary skip the offending file or chunk; failures at the
// boundary skip the repository. Neither stops the run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/chunker"
	"github.com/fyrsmithlabs/coderag/internal/config"
	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/repository"
	"github.com/fyrsmithlabs/coderag/internal/secrets"
	"github.com/fyrsmithlabs/coderag/internal/vectorstore"
)

var tracer = otel.Tracer("coderag.indexer")

// ErrEmbedderNotReady is returned when Run is called before the embedder has
// been initialized.
var ErrEmbedderNotReady = fmt.Errorf("indexer: %w", embeddings.ErrNotInitialized)

// Walker lists the documents of a checked-out repository.
type Walker interface {
	Walk(ctx context.Context, rootPath, repoName string) (iter.Seq[repository.Document], error)
}

// Splitter cuts a document into chunks.
type Splitter interface {
	Split(doc repository.Document) ([]chunker.Chunk, error)
}

// Embedder turns chunk text into a vector.
type Embedder interface {
	IsReady() bool
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists vectors.
type Store interface {
	InitializeCollection(ctx context.Context, name string, dim int) error
	Upsert(ctx context.Context, collection string, id uint64, vector []float32, payload map[string]any) (vectorstore.UpsertResult, error)
}

// Scrubber removes credentials from chunk text.
type Scrubber interface {
	Scrub(content string) secrets.Result
}

// Config controls a run.
type Config struct {
	// ReposDir holds one checkout per repository, named after it.
	ReposDir   string
	Collection string
	// BatchSize upserts are followed by a BatchDelay pause. BatchSize <= 0
	// disables pacing.
	BatchSize  int
	BatchDelay time.Duration
}

// Indexer orchestrates indexing runs. Only one run should target a
// collection at a time.
type Indexer struct {
	cfg      Config
	fetcher  repository.Fetcher
	walker   Walker
	splitter Splitter
	embedder Embedder
	store    Store
	scrubber Scrubber
	logger   *logging.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithScrubber redacts credentials from chunks before they are embedded.
func WithScrubber(s Scrubber) Option {
	return func(ix *Indexer) { ix.scrubber = s }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New creates an Indexer.
func New(cfg Config, fetcher repository.Fetcher, walker Walker, splitter Splitter, embedder Embedder, store Store, opts ...Option) (*Indexer, error) {
	if fetcher == nil || walker == nil || splitter == nil || embedder == nil || store == nil {
		return nil, errors.New("indexer: fetcher, walker, splitter, embedder and store are required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("indexer: collection is required")
	}
	ix := &Indexer{
		cfg:      cfg,
		fetcher:  fetcher,
		walker:   walker,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logging.NewNop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.Named("indexer")
	return ix, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run holds the state shared by every repository of one run.
type run struct {
	summary *RunSummary
	nextID  uint64
	stored  uint64
	// sinceBatch counts upserts since the last pacing pause.
	sinceBatch int
}

// Run indexes repos in order and returns what happened.
//
// The error is non-nil only when the run could not start (embedder not
// ready, collection reset failed) or ctx was cancelled, in which case the
// summary covers the repositories finished before cancellation.
func (ix *Indexer) Run(ctx context.Context, repos []config.RepositoryDescriptor) (*RunSummary, error) {
	r := &run{summary: &RunSummary{
		RunID:      uuid.NewString(),
		Collection: ix.cfg.Collection,
		Started:    time.Now(),
	}}
	ctx = logging.WithRunID(ctx, r.summary.RunID)
	ctx, span := tracer.Start(ctx, "indexer.Run")
	defer span.End()
	defer func() {
		r.summary.Duration = time.Since(r.summary.Started)
		runDuration.Observe(r.summary.Duration.Seconds())
	}()

	if !ix.embedder.IsReady() {
		return r.summary, ErrEmbedderNotReady
	}

	valid, rejected := config.ValidRepositories(repos)
	for _, err := range rejected {
		ix.logger.Warn(ctx, "skipping repository entry", zap.Error(err))
	}
	r.summary.Rejected = rejected
	span.SetAttributes(attribute.Int("repositories", len(valid)), attribute.Int("rejected", len(rejected)))

	if err := ix.store.InitializeCollection(ctx, ix.cfg.Collection, ix.embedder.Dimension()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.summary, fmt.Errorf("resetting collection %s: %w", ix.cfg.Collection, err)
	}

	ix.logger.Info(ctx, "indexing run started",
		zap.String("collection", ix.cfg.Collection),
		zap.Int("repositories", len(valid)))

	for _, repo := range valid {
		if err := ctx.Err(); err != nil {
			ix.logger.Warn(ctx, "indexing run cancelled", zap.Int("remaining", len(valid)-len(r.summary.Repositories)))
			span.SetStatus(codes.Error, "cancelled")
			return r.summary, err
		}
		rs := ix.indexRepository(ctx, r, repo)
		repositoriesTotal.WithLabelValues(string(rs.Status)).Inc()
		r.summary.Repositories = append(r.summary.Repositories, rs)
	}
	r.summary.Points = r.stored

	ix.logger.Info(ctx, "indexing run finished",
		zap.Uint64("points", r.summary.Points),
		zap.Int("failed_repositories", len(r.summary.Failed())),
		zap.Duration("duration", time.Since(r.summary.Started)))
	span.SetAttributes(attribute.Int64("points", int64(r.summary.Points)))
	span.SetStatus(codes.Ok, "finished")
	return r.summary, nil
}

func (ix *Indexer) indexRepository(ctx context.Context, r *run, repo config.RepositoryDescriptor) (rs RepositorySummary) {
	ctx = logging.WithRepository(ctx, repo.Name)
	ctx, span := tracer.Start(ctx, "indexer.Repository")
	defer span.End()
	span.SetAttributes(attribute.String("repository", repo.Name))

	start := time.Now()
	rs = RepositorySummary{Name: repo.Name}
	defer func() {
		rs.Duration = time.Since(start)
		r.summary.Points = r.stored
		if rs.Err != nil {
			span.RecordError(rs.Err)
			span.SetStatus(codes.Error, rs.Err.Error())
		}
	}()

	fail := func(msg string, err error) RepositorySummary {
		rs.Status = StatusFailed
		rs.Err = err
		ix.logger.Error(ctx, msg, zap.Error(err),
			zap.Int("documents", rs.Documents), zap.Int("chunks", rs.Chunks))
		return rs
	}

	localPath := filepath.Join(ix.cfg.ReposDir, repo.Name)
	if err := ix.fetcher.FetchOrUpdate(ctx, repo.URL, localPath); err != nil {
		return fail("repository fetch failed, skipping", err)
	}

	docs, err := ix.walker.Walk(ctx, localPath, repo.Name)
	if err != nil {
		return fail("repository walk failed, skipping", err)
	}

	for doc := range docs {
		rs.Documents++
		chunks, err := ix.splitter.Split(doc)
		if err != nil {
			rs.FailedDocuments++
			itemsSkippedTotal.WithLabelValues("chunk").Inc()
			ix.logger.Warn(ctx, "skipping document that failed to chunk",
				zap.String("path", doc.Metadata.Path), zap.Error(err))
			continue
		}
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return fail("repository interrupted", err)
			}
			if err := ix.indexChunk(ctx, r, &rs, c); err != nil {
				return fail("storing chunk failed, skipping rest of repository", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return fail("repository interrupted", err)
	}

	if rs.Documents == 0 {
		rs.Status = StatusEmpty
		ix.logger.Warn(ctx, "repository yielded no documents")
		return rs
	}
	rs.Status = StatusIndexed
	ix.logger.Info(ctx, "repository indexed",
		zap.Int("documents", rs.Documents),
		zap.Int("chunks", rs.Chunks),
		zap.Int("failed_documents", rs.FailedDocuments),
		zap.Int("failed_chunks", rs.FailedChunks),
		zap.Int("redactions", rs.Redactions))
	return rs
}

// indexChunk embeds and stores one chunk. Embedding failures are recorded
// and swallowed; a returned error means the store rejected the point.
func (ix *Indexer) indexChunk(ctx context.Context, r *run, rs *RepositorySummary, c chunker.Chunk) error {
	content := c.Content
	if ix.scrubber != nil {
		res := ix.scrubber.Scrub(content)
		if res.Redacted() {
			rs.Redactions += len(res.Findings)
			ix.logger.Info(ctx, "redacted credentials from chunk",
				zap.String("path", c.Metadata.Path),
				zap.Int("chunk", c.Index),
				zap.Strings("rules", res.RuleIDs()))
			content = res.Content
		}
	}

	vec, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		rs.FailedChunks++
		itemsSkippedTotal.WithLabelValues("embed").Inc()
		ix.logger.Warn(ctx, "skipping chunk that failed to embed",
			zap.String("path", c.Metadata.Path), zap.Int("chunk", c.Index), zap.Error(err))
		return nil
	}

	if err := ix.pace(ctx, r); err != nil {
		return err
	}

	id := r.nextID
	r.nextID++
	if _, err := ix.store.Upsert(ctx, ix.cfg.Collection, id, vec, payloadFor(c, content)); err != nil {
		return fmt.Errorf("point %d from %s: %w", id, c.Metadata.Path, err)
	}
	r.stored++
	rs.Chunks++
	r.sinceBatch++
	chunksIndexedTotal.Inc()
	return nil
}

// pace pauses once a full batch has been stored.
func (ix *Indexer) pace(ctx context.Context, r *run) error {
	if ix.cfg.BatchSize <= 0 || ix.cfg.BatchDelay <= 0 || r.sinceBatch < ix.cfg.BatchSize {
		return nil
	}
	r.sinceBatch = 0
	ix.logger.Debug(ctx, "batch stored, pausing", zap.Duration("delay", ix.cfg.BatchDelay))
	return ix.sleep(ctx, ix.cfg.BatchDelay)
}

func payloadFor(c chunker.Chunk, content string) map[string]any {
	return map[string]any{
		"content":     content,
		"repo":        c.Metadata.Repo,
		"path":        c.Metadata.Path,
		"size":        c.Metadata.Size,
		"modified":    c.Metadata.Modified.UTC().Format(time.RFC3339),
		"chunk_index": c.Index,
		"start_token": c.StartToken,
		"end_token":   c.EndToken,
	}
}
