package services

import (
	"github.com/fyrsmithlabs/devopsd/internal/agents/cicd"
	"github.com/fyrsmithlabs/devopsd/internal/agents/infra"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/secrets"
	"github.com/fyrsmithlabs/devopsd/internal/terraform"
)

// Registry provides access to the assembled services.
type Registry interface {
	Orchestrator() *orchestrator.Orchestrator
	Pipelines() *cicd.Agent
	Infrastructure() *infra.Agent
	Generator() terraform.Generator
	// SecretsGate is nil when secret scanning is disabled.
	SecretsGate() *secrets.Gate
}

// Options configures the registry with service instances.
type Options struct {
	Orchestrator   *orchestrator.Orchestrator
	Pipelines      *cicd.Agent
	Infrastructure *infra.Agent
	Generator      terraform.Generator
	SecretsGate    *secrets.Gate
}

// registry is the concrete implementation of Registry.
type registry struct {
	orchestrator   *orchestrator.Orchestrator
	pipelines      *cicd.Agent
	infrastructure *infra.Agent
	generator      terraform.Generator
	secretsGate    *secrets.Gate
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		orchestrator:   opts.Orchestrator,
		pipelines:      opts.Pipelines,
		infrastructure: opts.Infrastructure,
		generator:      opts.Generator,
		secretsGate:    opts.SecretsGate,
	}
}

func (r *registry) Orchestrator() *orchestrator.Orchestrator { return r.orchestrator }
func (r *registry) Pipelines() *cicd.Agent                   { return r.pipelines }
func (r *registry) Infrastructure() *infra.Agent             { return r.infrastructure }
func (r *registry) Generator() terraform.Generator           { return r.generator }
func (r *registry) SecretsGate() *secrets.Gate               { return r.secretsGate }
