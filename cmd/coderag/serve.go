package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/coderag/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question-answering HTTP API",
	Long: `Start the HTTP API:

  POST /api/v1/ask   answer a question
  GET  /health       vector store and embedding model status
  GET  /metrics      Prometheus metrics

The server shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	checks := []httpserver.HealthCheck{
		{Name: "vectorstore", Check: a.store.Health},
		{Name: "embeddings", Check: func(context.Context) error {
			if !a.embedder.IsReady() {
				return embeddings.ErrNotInitialized
			}
			return nil
		}},
	}
	srv, err := httpserver.NewServer(engine, checks, a.logger, &httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "graceful shutdown failed", zap.Error(err))
		return err
	}
	return <-errCh
}
