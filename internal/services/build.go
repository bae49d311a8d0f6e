package services

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/devopsd/internal/agents/cicd"
	"github.com/fyrsmithlabs/devopsd/internal/agents/infra"
	"github.com/fyrsmithlabs/devopsd/internal/agents/placeholder"
	"github.com/fyrsmithlabs/devopsd/internal/config"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/secrets"
	"github.com/fyrsmithlabs/devopsd/internal/terraform"
)

// Build wires agents, gates and observers into an orchestrator.
// tracer may be nil.
func Build(cfg *config.Config, logger *logging.Logger, tracer trace.Tracer, observers ...orchestrator.Observer) (Registry, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	gen, err := NewGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("terraform generator: %w", err)
	}

	pipelines := cicd.New(
		cicd.WithDeployBranch(cfg.Workflow.DeployBranch),
		cicd.WithLogger(logger),
	)
	infrastructure := infra.New(
		infra.WithGenerator(gen),
		infra.WithDefaultProvider(cfg.Workflow.DefaultCloudProvider),
		infra.WithLogger(logger),
	)

	agents := []orchestrator.PhaseAgent{pipelines, infrastructure}
	agents = append(agents, placeholder.All()...)

	agentRegistry, err := orchestrator.NewRegistry(agents...)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithSupervisor(orchestrator.NewSupervisor(cfg.Workflow.SupervisorRetryCeiling)),
		orchestrator.WithMaxIterations(cfg.Workflow.MaxIterations),
		orchestrator.WithMaxPhaseAttempts(cfg.Workflow.MaxPhaseAttempts),
		orchestrator.WithPhaseTimeout(cfg.Workflow.PhaseTimeout.Duration()),
	}
	if tracer != nil {
		opts = append(opts, orchestrator.WithTracer(tracer))
	}

	var gate *secrets.Gate
	if cfg.Secrets.Enabled {
		gate, err = NewSecretsGate(cfg.Secrets, logger)
		if err != nil {
			return nil, fmt.Errorf("secrets gate: %w", err)
		}
		opts = append(opts, orchestrator.WithGate(gate))
	}
	for _, obs := range observers {
		opts = append(opts, orchestrator.WithObserver(obs))
	}

	return NewRegistry(Options{
		Orchestrator:   orchestrator.New(agentRegistry, opts...),
		Pipelines:      pipelines,
		Infrastructure: infrastructure,
		Generator:      gen,
		SecretsGate:    gate,
	}), nil
}

// NewGenerator returns the template generator, fronted by the LLM generator
// when one is configured.
func NewGenerator(cfg config.LLMConfig, logger *logging.Logger) (terraform.Generator, error) {
	template := terraform.NewTemplateGenerator()
	if !cfg.Enabled {
		return template, nil
	}

	client, err := terraform.NewOpenAICompleter(cfg)
	if err != nil {
		return nil, err
	}
	llm := terraform.NewLLMGenerator(client,
		terraform.WithRateLimit(cfg.RequestsPerMinute, cfg.Burst),
		terraform.WithMaxRetries(cfg.MaxRetries),
		terraform.WithLLMLogger(logger),
	)
	return terraform.FallbackGenerator{Primary: llm, Secondary: template}, nil
}

// NewSecretsGate loads the allowlist and builds a gitleaks-backed gate.
func NewSecretsGate(cfg config.SecretsConfig, logger *logging.Logger) (*secrets.Gate, error) {
	allow, err := secrets.LoadAllowlist(cfg.AllowlistPath)
	if err != nil {
		return nil, err
	}
	detector, err := secrets.NewGitleaksDetector(allow)
	if err != nil {
		return nil, err
	}
	return secrets.NewGate(detector, secrets.WithLogger(logger)), nil
}
