package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/chunker"
	"github.com/fyrsmithlabs/coderag/internal/config"
	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	"github.com/fyrsmithlabs/coderag/internal/generation"
	"github.com/fyrsmithlabs/coderag/internal/indexer"
	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/query"
	"github.com/fyrsmithlabs/coderag/internal/repository"
	"github.com/fyrsmithlabs/coderag/internal/secrets"
	"github.com/fyrsmithlabs/coderag/internal/telemetry"
	"github.com/fyrsmithlabs/coderag/internal/vectorstore"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  *embeddings.Client
	store     *vectorstore.Client
}

// loadConfig reads configuration from the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigPath: configPath, DotEnvPath: envFilePath})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newApp initializes the dependencies in order:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Loads the embedding model
//  4. Connects to the vector store
//
// Anything created before a failure is released before returning.
func newApp(ctx context.Context) (_ *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.New(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	backend, err := embeddings.NewBackend(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding backend: %w", err)
	}
	a.embedder, err = embeddings.NewClient(backend, cfg.Embeddings.Dimension, logger.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	if err := a.embedder.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}

	a.store, err = vectorstore.NewFromConfig(cfg.VectorStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	logger.Info(ctx, "dependencies initialized",
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
	)
	return a, nil
}

// Close releases everything newApp created.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync() // Best-effort sync
}

func (a *app) newIndexer() (*indexer.Indexer, error) {
	tok, err := chunker.NewTiktokenTokenizer(a.cfg.Chunking.Encoding, a.cfg.Chunking.BPEDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	splitter, err := chunker.New(tok, a.cfg.Chunking.ChunkSize, a.cfg.Chunking.Overlap, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	opts := []indexer.Option{indexer.WithLogger(a.logger)}
	if a.cfg.Indexing.ScrubSecrets {
		cfg := secrets.DefaultConfig()
		cfg.Gitleaks = a.cfg.Indexing.Gitleaks
		scrubber, err := secrets.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret scrubber: %w", err)
		}
		opts = append(opts, indexer.WithScrubber(scrubber))
	}

	return indexer.New(
		indexer.Config{
			ReposDir:   a.cfg.Workspace.ReposDir,
			Collection: a.cfg.VectorStore.Collection,
			BatchSize:  a.cfg.Indexing.BatchSize,
			BatchDelay: a.cfg.Indexing.BatchDelay.Duration(),
		},
		repository.NewGitFetcher(a.logger.Named("git")),
		repository.NewWalker(repository.DefaultFilter(), a.logger.Named("walker"), a.cfg.Workspace.MaxFileSize),
		splitter,
		a.embedder,
		a.store,
		opts...,
	)
}

func (a *app) newEngine() (*query.Engine, error) {
	gen, err := generation.New(a.cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	names := make([]string, 0, len(a.cfg.Repositories))
	for _, r := range a.cfg.Repositories {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}

	return query.New(
		query.Config{
			Collection:   a.cfg.VectorStore.Collection,
			TopK:         a.cfg.Query.TopK,
			Timeout:      a.cfg.Query.Timeout.Duration(),
			Repositories: names,
		},
		a.embedder,
		a.store,
		gen,
		a.logger,
	)
}
