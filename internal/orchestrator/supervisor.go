package orchestrator

import (
	"fmt"
)

// ActionKind discriminates NextAction.
type ActionKind int

const (
	ActionRunPhase ActionKind = iota
	ActionFinish
	ActionRetry
)

func (k ActionKind) String() string {
	switch k {
	case ActionRunPhase:
		return "run_phase"
	case ActionFinish:
		return "finish"
	case ActionRetry:
		return "retry"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// NextAction is the supervisor's decision.
type NextAction struct {
	Kind    ActionKind
	Phase   Phase
	Message string
}

// RunPhase asks the driver to run p.
func RunPhase(p Phase) NextAction { return NextAction{Kind: ActionRunPhase, Phase: p} }

// Finish asks the driver to stop with msg.
func Finish(msg string) NextAction { return NextAction{Kind: ActionFinish, Message: msg} }

// Retry asks the driver to consult the supervisor again.
func Retry() NextAction { return NextAction{Kind: ActionRetry} }

// MessageAllCompleted is the final response of a run that finished every phase.
const MessageAllCompleted = "All phases completed successfully"

// DefaultRetryCeiling bounds supervisor failures per run.
const DefaultRetryCeiling = 3

// Supervisor picks the next phase.
type Supervisor struct {
	order        []Phase
	retryCeiling int
}

// NewSupervisor creates a supervisor using PriorityOrder.
func NewSupervisor(retryCeiling int) *Supervisor {
	if retryCeiling <= 0 {
		retryCeiling = DefaultRetryCeiling
	}
	return &Supervisor{order: PriorityOrder(), retryCeiling: retryCeiling}
}

// Decide returns the next action for state. On an internal failure it logs a
// "supervisor" error and bumps the retry counter; past the ceiling it
// finishes the run.
func (s *Supervisor) Decide(state *WorkflowState) NextAction {
	action, err := s.decide(state.RequestedPhase(), state.CompletedPhases())
	if err == nil {
		return action
	}

	state.AddError("supervisor", err.Error())
	if state.IncrementRetry() < s.retryCeiling {
		return Retry()
	}
	return Finish(fmt.Sprintf("Error in supervisor agent: %v", err))
}

// decide is pure: the result depends only on the override and the completed set.
func (s *Supervisor) decide(requested Phase, completed []Phase) (NextAction, error) {
	if requested != "" {
		return RunPhase(requested), nil
	}

	done := make(map[Phase]bool, len(completed))
	for _, p := range completed {
		if !p.Valid() {
			return NextAction{}, fmt.Errorf("%w: completed phases contain %q (%w)", ErrSupervisorFailure, p, ErrUnknownPhase)
		}
		done[p] = true
	}

	for _, p := range s.order {
		if !done[p] {
			return RunPhase(p), nil
		}
	}
	return Finish(MessageAllCompleted), nil
}
