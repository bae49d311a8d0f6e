package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/devopsd/internal/agents/cicd"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// Runner executes workflows. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Execute(ctx context.Context, request string, opts ...orchestrator.StateOption) *orchestrator.Result
	ExecutePhase(ctx context.Context, phase orchestrator.Phase, request string, opts ...orchestrator.StateOption) (*orchestrator.Result, error)
}

// PipelineGenerator renders a CI/CD pipeline outside a workflow run.
// *cicd.Agent satisfies it.
type PipelineGenerator interface {
	Generate(ctx context.Context, request string) (*cicd.Result, error)
}

// Server is an MCP server backed by the in-process orchestrator.
type Server struct {
	mcp       *mcp.Server
	runner    Runner
	pipelines PipelineGenerator
	metrics   *Metrics
	logger    *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "devopsd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	Logger  *logging.Logger
	Metrics *Metrics
}

// DefaultConfig returns the default server identity with a no-op logger.
func DefaultConfig() *Config {
	return &Config{
		Name:    "devopsd",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server. pipelines defaults to a cicd.Agent.
func NewServer(cfg *Config, runner Runner, pipelines PipelineGenerator) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil, cfg.Logger)
	}
	if pipelines == nil {
		pipelines = cicd.New(cicd.WithLogger(cfg.Logger))
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		runner:    runner,
		pipelines: pipelines,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
