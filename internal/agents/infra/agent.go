// Package infra implements the infrastructure phase: it produces a Terraform
// configuration for the requested cloud, validates it, and optionally hands
// it to a provisioner.
package infra

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/cloud"
	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
	"github.com/fyrsmithlabs/devopsd/internal/terraform"
)

// ArtifactKey is the file name of the generated configuration.
const ArtifactKey = "main.tf"

// Result is what the infrastructure phase contributes to the workflow.
type Result struct {
	Files         map[string]string     `json:"artifacts"`
	Config        *terraform.Config     `json:"terraform_config"`
	CloudProvider cloud.Provider        `json:"cloud_provider"`
	Region        string                `json:"region"`
	Repairs       []string              `json:"repairs,omitempty"`
	Deployment    *terraform.Deployment `json:"deployment,omitempty"`
	Message       string                `json:"message"`
}

func (r *Result) ResultPhase() orchestrator.Phase { return orchestrator.PhaseInfra }
func (r *Result) Summary() string                 { return r.Message }
func (r *Result) Artifacts() map[string]string    { return r.Files }

// Agent generates infrastructure definitions.
type Agent struct {
	generator       terraform.Generator
	provisioner     terraform.Provisioner
	defaultProvider string
	logger          *logging.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithGenerator replaces the built-in template generator.
func WithGenerator(g terraform.Generator) Option {
	return func(a *Agent) { a.generator = g }
}

// WithProvisioner replaces the simulated provisioner.
func WithProvisioner(p terraform.Provisioner) Option {
	return func(a *Agent) { a.provisioner = p }
}

// WithDefaultProvider sets the provider used when the input names none.
func WithDefaultProvider(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.defaultProvider = name
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
		generator:       terraform.NewTemplateGenerator(),
		provisioner:     terraform.SimulatedProvisioner{},
		defaultProvider: string(cloud.DefaultProvider),
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Phase() orchestrator.Phase { return orchestrator.PhaseInfra }

// Run implements orchestrator.PhaseAgent. An unsupported provider or region
// yields a ClarificationRequest rather than an error.
func (a *Agent) Run(ctx context.Context, in orchestrator.AgentInput) (orchestrator.PhaseResult, error) {
	providerName := in.Input.CloudProvider
	if providerName == "" {
		providerName = a.defaultProvider
	}
	provider, err := cloud.Lookup(providerName)
	if err != nil {
		return &orchestrator.ClarificationRequest{
			Phase:    orchestrator.PhaseInfra,
			Question: fmt.Sprintf("Cloud provider %q is not supported. Which of %s should be used?", providerName, joinProviders()),
		}, nil
	}

	region := in.Input.Region
	if region == "" {
		region = provider.DefaultRegion
	}
	if !provider.SupportsRegion(region) {
		return &orchestrator.ClarificationRequest{
			Phase: orchestrator.PhaseInfra,
			Question: fmt.Sprintf("Region %q is not available on %s. Which region should be used? Supported: %s",
				region, provider.Name, strings.Join(provider.SupportedRegions, ", ")),
		}, nil
	}

	hcl, err := a.generator.Generate(ctx, terraform.Request{
		UserRequest: in.Request,
		Provider:    provider,
		Region:      region,
		Resources:   in.Input.Resources,
	})
	if err != nil {
		return nil, fmt.Errorf("generating terraform configuration: %w", err)
	}

	cfg := terraform.Parse(hcl)
	var repairs []string
	if verr := terraform.Validate(cfg); verr != nil {
		a.logger.Warn(ctx, "terraform configuration invalid, attempting repair", zap.Error(verr))
		cfg, repairs = terraform.Repair(cfg, provider.ProviderBlock)
		if verr := terraform.Validate(cfg); verr != nil {
			return nil, fmt.Errorf("%w: %w", orchestrator.ErrValidation, verr)
		}
		hcl = cfg.HCL()
	}

	res := &Result{
		Files:         map[string]string{ArtifactKey: hcl},
		Config:        cfg,
		CloudProvider: provider.Provider,
		Region:        region,
		Repairs:       repairs,
		Message:       fmt.Sprintf("Terraform configuration for %s in %s generated successfully", provider.Name, region),
	}

	if in.Input.Deploy {
		dep, err := a.provisioner.Provision(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("deploying infrastructure: %w", err)
		}
		res.Deployment = dep
		res.Message += "; " + dep.Message
	}

	a.logger.Info(ctx, "infrastructure configuration generated",
		zap.String("provider", string(provider.Provider)),
		zap.String("region", region),
		zap.Int("resources", len(cfg.Resources)),
		zap.Bool("deployed", res.Deployment != nil))

	return res, nil
}

func joinProviders() string {
	names := make([]string, 0, len(cloud.Providers()))
	for _, p := range cloud.Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
