package terraform

import (
	"context"
	"errors"
)

// ErrNothingToDeploy is returned when deploy is requested without a configuration.
var ErrNothingToDeploy = errors.New("no Terraform configuration to deploy")

// Deployment is the outcome of a provisioning request.
type Deployment struct {
	Status            string            `json:"status"`
	Message           string            `json:"message"`
	ResourcesDeployed []string          `json:"resources_deployed"`
	Outputs           map[string]string `json:"outputs"`
}

// Provisioner applies a configuration.
type Provisioner interface {
	Provision(ctx context.Context, cfg *Config) (*Deployment, error)
}

// SimulatedProvisioner reports a successful deployment without touching any
// cloud account. Results are fixed.
type SimulatedProvisioner struct{}

// Provision implements Provisioner.
func (SimulatedProvisioner) Provision(ctx context.Context, cfg *Config) (*Deployment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg == nil || len(cfg.Resources) == 0 {
		return nil, ErrNothingToDeploy
	}
	return &Deployment{
		Status:            "success",
		Message:           "Infrastructure deployment initiated",
		ResourcesDeployed: []string{"vpc", "subnet", "security_group"},
		Outputs: map[string]string{
			"vpc_id":    "vpc-12345678",
			"subnet_id": "subnet-12345678",
		},
	}, nil
}
