package orchestrator

import (
	"context"
	"fmt"
)

// Gate inspects a successful PhaseResult before it is merged into the state.
// A gate may rewrite artifacts in place. Returning an error turns the phase
// into a failed attempt.
type Gate interface {
	Name() string
	Check(ctx context.Context, phase Phase, result PhaseResult) error
}

// GateFunc adapts a function to Gate.
type GateFunc struct {
	GateName string
	Fn       func(ctx context.Context, phase Phase, result PhaseResult) error
}

func (g GateFunc) Name() string { return g.GateName }

func (g GateFunc) Check(ctx context.Context, phase Phase, result PhaseResult) error {
	return g.Fn(ctx, phase, result)
}

// checkGates runs every gate in registration order and stops at the first rejection.
func (o *Orchestrator) checkGates(ctx context.Context, phase Phase, result PhaseResult) error {
	for _, gate := range o.gates {
		if err := gate.Check(ctx, phase, result); err != nil {
			return fmt.Errorf("gate %s rejected result: %w", gate.Name(), err)
		}
	}
	return nil
}
