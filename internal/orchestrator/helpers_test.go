package orchestrator

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"
)

// MockAgent is a testify mock of PhaseAgent.
type MockAgent struct {
	mock.Mock
	phase Phase
}

func NewMockAgent(phase Phase) *MockAgent {
	return &MockAgent{phase: phase}
}

func (m *MockAgent) Phase() Phase {
	return m.phase
}

func (m *MockAgent) Run(ctx context.Context, in AgentInput) (PhaseResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(PhaseResult), args.Error(1)
}

// funcAgent runs fn for its phase.
type funcAgent struct {
	phase Phase
	fn    func(ctx context.Context, in AgentInput) (PhaseResult, error)
}

func (f *funcAgent) Phase() Phase { return f.phase }

func (f *funcAgent) Run(ctx context.Context, in AgentInput) (PhaseResult, error) {
	return f.fn(ctx, in)
}

func okAgent(p Phase) *funcAgent {
	return &funcAgent{phase: p, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		return &PlaceholderResult{Phase: p, Message: fmt.Sprintf("%s done", p)}, nil
	}}
}

func failingAgent(p Phase, err error) *funcAgent {
	return &funcAgent{phase: p, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		return nil, err
	}}
}

// artifactResult is a PhaseResult carrying files, for gate tests.
type artifactResult struct {
	phase Phase
	files map[string]string
}

func (a *artifactResult) ResultPhase() Phase           { return a.phase }
func (a *artifactResult) Summary() string              { return "artifacts" }
func (a *artifactResult) Artifacts() map[string]string { return a.files }

func allOK() []PhaseAgent {
	agents := make([]PhaseAgent, 0, len(KnownPhases()))
	for _, p := range KnownPhases() {
		agents = append(agents, okAgent(p))
	}
	return agents
}

func mustRegistry(agents ...PhaseAgent) *Registry {
	r, err := NewRegistry(agents...)
	if err != nil {
		panic(err)
	}
	return r
}
