package orchestrator

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify.
var (
	// ErrValidation marks generated configuration that failed validation.
	ErrValidation = errors.New("validation error")

	// ErrAgentFailure marks an agent that failed in its own logic.
	ErrAgentFailure = errors.New("agent failure")

	// ErrSupervisorFailure marks a supervisor that could not compute a decision.
	ErrSupervisorFailure = errors.New("supervisor failure")

	// ErrWorkflowExceeded marks a run stopped by the iteration ceiling.
	ErrWorkflowExceeded = errors.New("workflow exceeded maximum phases")

	// ErrConfiguration marks a run that was misconfigured (e.g. unknown override).
	ErrConfiguration = errors.New("configuration error")

	// ErrPhaseTimeout marks an agent that ran past its deadline.
	ErrPhaseTimeout = errors.New("phase timeout")

	// ErrUnknownPhase marks a phase identifier with no meaning.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrDuplicateAgent is returned when two agents claim the same phase.
	ErrDuplicateAgent = errors.New("agent already registered")
)

// PhaseError wraps an error raised while running a phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Is lets any PhaseError match ErrAgentFailure unless it already carries a
// more specific kind.
func (e *PhaseError) Is(target error) bool {
	if target != ErrAgentFailure {
		return false
	}
	return !errors.Is(e.Err, ErrValidation) && !errors.Is(e.Err, ErrPhaseTimeout)
}
