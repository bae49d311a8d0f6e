// Package placeholder provides agents for phases that acknowledge the request
// without producing artifacts yet.
package placeholder

import (
	"context"

	"github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

var messages = map[orchestrator.Phase]string{
	orchestrator.PhaseApp:        "Application agent would run here",
	orchestrator.PhaseK8s:        "Kubernetes agent would run here",
	orchestrator.PhaseMonitoring: "Monitoring agent would run here",
	orchestrator.PhaseSecurity:   "Security agent would run here",
}

// Agent acknowledges its phase.
type Agent struct {
	phase   orchestrator.Phase
	message string
}

// New returns a placeholder for phase.
func New(phase orchestrator.Phase) *Agent {
	msg, ok := messages[phase]
	if !ok {
		msg = string(phase) + " agent would run here"
	}
	return &Agent{phase: phase, message: msg}
}

// All returns placeholders for every phase without a real implementation.
func All() []orchestrator.PhaseAgent {
	return []orchestrator.PhaseAgent{
		New(orchestrator.PhaseApp),
		New(orchestrator.PhaseK8s),
		New(orchestrator.PhaseMonitoring),
		New(orchestrator.PhaseSecurity),
	}
}

func (a *Agent) Phase() orchestrator.Phase { return a.phase }

func (a *Agent) Run(ctx context.Context, _ orchestrator.AgentInput) (orchestrator.PhaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &orchestrator.PlaceholderResult{Phase: a.phase, Message: a.message}, nil
}
