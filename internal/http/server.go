// Package http provides the HTTP API for devopsd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// Runner executes workflows. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Execute(ctx context.Context, request string, opts ...orchestrator.StateOption) *orchestrator.Result
	ExecutePhase(ctx context.Context, phase orchestrator.Phase, request string, opts ...orchestrator.StateOption) (*orchestrator.Result, error)
}

// Server provides HTTP endpoints for devopsd.
type Server struct {
	echo     *echo.Echo
	runner   Runner
	runs     *RunStore
	logger   *logging.Logger
	config   *Config
	gatherer prometheus.Gatherer
	metrics  *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves Prometheus metrics from g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHTTPMetrics records OpenTelemetry request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRunStore shares a run store with other components.
func WithRunStore(store *RunStore) Option {
	return func(s *Server) { s.runs = store }
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runs == nil {
		s.runs = NewRunStore(0)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/workflows", s.handleRunWorkflow)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleRunWorkflow runs a workflow to completion and stores its result.
func (s *Server) handleRunWorkflow(c echo.Context) error {
	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid workflow request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request field is required")
	}

	ctx := c.Request().Context()
	var opts []orchestrator.StateOption
	if req.Input != nil {
		opts = append(opts, orchestrator.WithPhaseInput(*req.Input))
	}

	var result *orchestrator.Result
	if req.Phase != "" {
		var err error
		result, err = s.runner.ExecutePhase(ctx, orchestrator.Phase(req.Phase), req.Request, opts...)
		if err != nil {
			if errors.Is(err, orchestrator.ErrConfiguration) {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			return err
		}
	} else {
		result = s.runner.Execute(ctx, req.Request, opts...)
	}

	s.runs.Put(result)
	s.metrics.RecordWorkflow(ctx, req.Phase, result.Status)
	s.logger.Debug(ctx, "workflow stored",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)))

	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/workflows/"+result.RunID)
	return c.JSON(http.StatusOK, result)
}

// handleGetWorkflow returns a stored result.
func (s *Server) handleGetWorkflow(c echo.Context) error {
	result, ok := s.runs.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
