package cicd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// Result is what the CI/CD phase contributes to the workflow.
type Result struct {
	Files       map[string]string `json:"artifacts"`
	ProjectName string            `json:"project_name"`
	BuildImage  string            `json:"build_image"`
	Message     string            `json:"message"`
}

func (r *Result) ResultPhase() orchestrator.Phase { return orchestrator.PhaseCICD }
func (r *Result) Summary() string                 { return r.Message }
func (r *Result) Artifacts() map[string]string    { return r.Files }
func (r *Result) Pipeline() string                { return r.Files[ArtifactKey] }

// Agent generates CI/CD pipelines.
type Agent struct {
	deployBranch string
	logger       *logging.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithDeployBranch restricts the deploy job to branch.
func WithDeployBranch(branch string) Option {
	return func(a *Agent) {
		if branch != "" {
			a.deployBranch = branch
		}
	}
}

// WithLogger sets the agent logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		deployBranch: DefaultDeployBranch,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Phase() orchestrator.Phase { return orchestrator.PhaseCICD }

// Run implements orchestrator.PhaseAgent.
func (a *Agent) Run(ctx context.Context, in orchestrator.AgentInput) (orchestrator.PhaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rt := DetectRuntime(in.Request)
	pipeline, err := Render(rt, a.deployBranch)
	if err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "CI/CD pipeline generated",
		zap.String("project", rt.ProjectName),
		zap.String("image", rt.BuildImage))

	return &Result{
		Files:       map[string]string{ArtifactKey: pipeline},
		ProjectName: rt.ProjectName,
		BuildImage:  rt.BuildImage,
		Message:     fmt.Sprintf("CI/CD pipeline for %s generated successfully", rt.ProjectName),
	}, nil
}

// Generate renders a pipeline outside a workflow run.
func (a *Agent) Generate(ctx context.Context, request string) (*Result, error) {
	res, err := a.Run(ctx, orchestrator.AgentInput{Request: request})
	if err != nil {
		return nil, err
	}
	return res.(*Result), nil
}
