package orchestrator

import (
	"fmt"
	"time"
)

// Phase identifies one unit of workflow progress.
type Phase string

const (
	// PhaseCICD renders the CI/CD pipeline definition.
	PhaseCICD Phase = "cicd"

	// PhaseInfra generates and validates Terraform configuration.
	PhaseInfra Phase = "infra"

	// PhaseK8s produces Kubernetes manifests.
	PhaseK8s Phase = "k8s"

	// PhaseMonitoring sets up monitoring.
	PhaseMonitoring Phase = "monitoring"

	// PhaseSecurity runs security configuration.
	PhaseSecurity Phase = "security"

	// PhaseApp scaffolds the application. Only reachable through an explicit override.
	PhaseApp Phase = "app"
)

// PriorityOrder returns the phases the supervisor walks, in order.
func PriorityOrder() []Phase {
	return []Phase{PhaseCICD, PhaseInfra, PhaseK8s, PhaseMonitoring, PhaseSecurity}
}

// KnownPhases returns every phase identifier the system understands.
func KnownPhases() []Phase {
	return append(PriorityOrder(), PhaseApp)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, k := range KnownPhases() {
		if p == k {
			return true
		}
	}
	return false
}

// ParsePhase converts s into a known Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

// LoopState is the driver's position in its state machine.
type LoopState int

const (
	StateDispatching LoopState = iota
	StateAgentRunning
	StateMerging
	StateClarifying
	StateDone
)

func (s LoopState) String() string {
	switch s {
	case StateDispatching:
		return "dispatching"
	case StateAgentRunning:
		return "agent_running"
	case StateMerging:
		return "merging"
	case StateClarifying:
		return "clarifying"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("LoopState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s LoopState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the externally visible outcome of a run.
type Status string

const (
	StatusPending             Status = "pending"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
	StatusClarificationNeeded Status = "clarification_needed"
	StatusCancelled           Status = "cancelled"
)

// PhaseStatus reports where a single phase stands.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// ErrorRecord is one entry in the append-only error log.
type ErrorRecord struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PhaseInput is phase-scoped data supplied with the request.
type PhaseInput struct {
	CloudProvider string   `json:"cloud_provider,omitempty"`
	Region        string   `json:"region,omitempty"`
	Resources     []string `json:"resources,omitempty"`
	Deploy        bool     `json:"deploy,omitempty"`
}

// AgentInput is the read-only view of the state handed to an agent.
// It is a copy, so agents never observe later mutation.
type AgentInput struct {
	RunID           string
	Request         string
	RequestedPhase  Phase
	Input           PhaseInput
	CompletedPhases []Phase
}
