package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/events"
	devhttp "github.com/fyrsmithlabs/devopsd/internal/http"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/mcp"
	"github.com/fyrsmithlabs/devopsd/internal/metrics"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/services"
	"github.com/fyrsmithlabs/devopsd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/devopsd"

type options struct {
	configPath string
	mcp        bool
}

// run loads configuration, wires every component and serves until ctx is
// cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Connects to NATS when event publishing is enabled
//  4. Builds agents, gates and the orchestrator
//  5. Serves HTTP, or MCP over stdio with --mcp
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := newLogger(cfg.Logging, tel, opts.mcp)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting devopsd",
		zap.String("version", version),
		zap.Bool("mcp", opts.mcp),
		zap.Bool("llm_enabled", cfg.LLM.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.Bool("secrets_enabled", cfg.Secrets.Enabled))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	svcs, err := services.Build(cfg, logger, tel.Tracer(instrumentationName), deps.observers...)
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}

	if opts.mcp {
		return serveMCP(ctx, svcs, logger, tel)
	}
	return serveHTTP(ctx, cfg, svcs.Orchestrator(), logger, tel)
}

// newLogger builds the zap logger. In stdio mode stdout carries MCP frames,
// so logs go to stderr.
func newLogger(cfg config.LoggingConfig, tel *telemetry.Telemetry, stdio bool) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logCfg.Level = level
	logCfg.Format = cfg.Format
	logCfg.Output.Stdout = !stdio
	logCfg.Output.Stderr = stdio
	logCfg.Output.OTEL = cfg.OTEL && tel.LoggerProvider() != nil

	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

// dependencies holds infrastructure connections.
type dependencies struct {
	nats      *events.Conn
	observers []orchestrator.Observer
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.nats != nil {
		d.nats.Close()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Metrics.Enabled {
		deps.observers = append(deps.observers, metrics.NewMetrics())
	}

	if cfg.NATS.Enabled {
		conn, err := events.Connect(cfg.NATS)
		if err != nil {
			return nil, err
		}
		deps.nats = conn
		deps.observers = append(deps.observers, events.NewPublisher(conn.Conn, cfg.NATS.SubjectPrefix, logger))
		logger.Info(ctx, "connected to NATS",
			zap.String("url", conn.ClientURL()),
			zap.Bool("embedded", cfg.NATS.Embedded),
			zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}

	return deps, nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, logger *logging.Logger, tel *telemetry.Telemetry) error {
	var serverOpts []devhttp.Option
	if cfg.Metrics.Enabled {
		serverOpts = append(serverOpts, devhttp.WithGatherer(prometheus.DefaultGatherer))
	}
	if cfg.Telemetry.Enabled {
		serverOpts = append(serverOpts, devhttp.WithHTTPMetrics(
			devhttp.NewHTTPMetrics(tel.Meter(instrumentationName), logger)))
	}

	srv, err := devhttp.NewServer(orch, logger, &devhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, serverOpts...)
	if err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown error", zap.Error(err))
		return err
	}

	logger.Info(shutdownCtx, "server stopped gracefully")
	return nil
}

func serveMCP(ctx context.Context, svcs services.Registry, logger *logging.Logger, tel *telemetry.Telemetry) error {
	server, err := mcp.NewServer(&mcp.Config{
		Name:    "devopsd",
		Version: version,
		Logger:  logger,
		Metrics: mcp.NewMetrics(tel.Meter(instrumentationName), logger),
	}, svcs.Orchestrator(), svcs.Pipelines())
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
