package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// PhaseAgent performs the work of one phase. Run must return promptly once
// ctx is done; the driver only waits briefly before starting the next attempt.
type PhaseAgent interface {
	Phase() Phase
	Run(ctx context.Context, in AgentInput) (PhaseResult, error)
}

// Registry maps phase identifiers to agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[Phase]PhaseAgent
}

// NewRegistry creates a registry pre-loaded with agents.
func NewRegistry(agents ...PhaseAgent) (*Registry, error) {
	r := &Registry{agents: make(map[Phase]PhaseAgent)}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an agent. Each phase may have exactly one agent.
func (r *Registry) Register(agent PhaseAgent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := agent.Phase()
	if _, exists := r.agents[p]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, p)
	}
	r.agents[p] = agent
	return nil
}

// Lookup returns the agent for p.
func (r *Registry) Lookup(p Phase) (PhaseAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[p]
	return a, ok
}

// Phases lists registered phases in KnownPhases order.
func (r *Registry) Phases() []Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Phase
	for _, p := range KnownPhases() {
		if _, ok := r.agents[p]; ok {
			out = append(out, p)
		}
	}
	for p := range r.agents {
		if !p.Valid() {
			out = append(out, p)
		}
	}
	return out
}
