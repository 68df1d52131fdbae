// Package http serves the question-answering API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/coderag/internal/embeddings"
	"github.com/fyrsmithlabs/coderag/internal/generation"
	"github.com/fyrsmithlabs/coderag/internal/logging"
	"github.com/fyrsmithlabs/coderag/internal/query"
)

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*query.Answer, error)
}

// HealthCheck is one dependency checked by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// HealthTimeout bounds all health checks together. Default 3s.
	HealthTimeout time.Duration
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	answerer Answerer
	checks   []HealthCheck
	logger   *logging.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(answerer Answerer, checks []HealthCheck, logger *logging.Logger, cfg *Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8080}
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		answerer: answerer,
		checks:   checks,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(s.requestLogger)
	e.Use(NewHTTPMetrics(s.logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger tags the request context with its id and logs completion.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.HealthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, hc := range s.checks {
		if err := hc.Check(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", zap.String("check", hc.Name), zap.Error(err))
			resp.Checks[hc.Name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}
	return c.JSON(status, resp)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "invalid_request", Message: "invalid request body"})
	}

	ctx := c.Request().Context()
	ans, err := s.answerer.Answer(ctx, req.Question)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "answer failed", zap.String("code", code), zap.Error(err))
		} else {
			s.logger.Info(ctx, "question not answered", zap.String("code", code), zap.Error(err))
		}
		return c.JSON(status, ErrorResponse{Code: code, Message: query.UserMessage(err)})
	}

	resp := AskResponse{Answer: ans.Answer, Sources: ans.Sources}
	if req.IncludeContext {
		resp.Context = ans.Context
	}
	return c.JSON(http.StatusOK, resp)
}

// classify maps the answer error taxonomy to a status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, query.ErrInvalidQuestion):
		return http.StatusBadRequest, "invalid_question"
	case errors.Is(err, query.ErrNotIndexed):
		return http.StatusNotFound, "not_indexed"
	case errors.Is(err, query.ErrNoRelevantContext):
		return http.StatusNotFound, "no_relevant_context"
	case errors.Is(err, query.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, generation.ErrAuthentication):
		return http.StatusBadGateway, "upstream_authentication"
	case errors.Is(err, generation.ErrModelAccess):
		return http.StatusBadGateway, "upstream_model_access"
	case errors.Is(err, generation.ErrUnavailable),
		errors.Is(err, generation.ErrEmptyResponse),
		errors.Is(err, embeddings.ErrUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
