package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
)

const (
	// DefaultMaxIterations is the hard ceiling on supervisor decisions per run.
	DefaultMaxIterations = 10

	// DefaultMaxPhaseAttempts bounds failed attempts at any single phase.
	DefaultMaxPhaseAttempts = 3

	// MessageWorkflowExceeded is forced as the final response at the ceiling.
	MessageWorkflowExceeded = "Workflow exceeded maximum phases"

	tracerName = "github.com/fyrsmithlabs/devopsd/internal/orchestrator"
)

// Orchestrator runs the supervisor/agent loop.
type Orchestrator struct {
	registry   *Registry
	supervisor *Supervisor
	logger     *logging.Logger
	tracer     trace.Tracer
	gates      []Gate
	observers  []Observer

	maxIterations    int
	maxPhaseAttempts int
	phaseTimeout     time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithSupervisor(s *Supervisor) Option {
	return func(o *Orchestrator) { o.supervisor = s }
}

func WithGate(g Gate) Option {
	return func(o *Orchestrator) { o.gates = append(o.gates, g) }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

func WithMaxPhaseAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPhaseAttempts = n
		}
	}
}

// WithPhaseTimeout bounds each agent invocation. Zero disables the deadline.
func WithPhaseTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.phaseTimeout = d }
}

// New creates an Orchestrator dispatching to agents in registry.
func New(registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:         registry,
		supervisor:       NewSupervisor(DefaultRetryCeiling),
		logger:           logging.NewNop(),
		tracer:           otel.GetTracerProvider().Tracer(tracerName),
		maxIterations:    DefaultMaxIterations,
		maxPhaseAttempts: DefaultMaxPhaseAttempts,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute creates a fresh state for request and runs it.
func (o *Orchestrator) Execute(ctx context.Context, request string, opts ...StateOption) *Result {
	return o.Run(ctx, NewWorkflowState(request, opts...))
}

// ExecutePhase runs exactly the named phase. An unknown phase is rejected
// before any state is created.
func (o *Orchestrator) ExecutePhase(ctx context.Context, phase Phase, request string, opts ...StateOption) (*Result, error) {
	if _, ok := o.registry.Lookup(phase); !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrConfiguration, ErrUnknownPhase, phase)
	}
	opts = append(opts, WithRequestedPhase(phase))
	return o.Execute(ctx, request, opts...), nil
}

// Run drives state until it finishes, pauses for clarification, or hits the
// iteration ceiling. Failures are recorded in the state; Run never returns
// an error.
func (o *Orchestrator) Run(ctx context.Context, state *WorkflowState) *Result {
	ctx = logging.WithRunID(ctx, state.RunID())
	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", state.RunID()),
		attribute.String("workflow.requested_phase", string(state.RequestedPhase())),
	))
	defer span.End()

	state.start()
	o.logger.Info(ctx, "workflow started",
		zap.String("requested_phase", string(state.RequestedPhase())),
		zap.Int("max_iterations", o.maxIterations))
	o.emit(ctx, Event{Type: EventRunStarted, RunID: state.RunID(), Status: StatusRunning})

	var status Status
	for status == "" {
		if state.Iterations() >= o.maxIterations {
			if msg, ok := o.finishedAtCeiling(state); ok {
				state.SetFinalResponse(msg)
				status = StatusCompleted
				break
			}
			if state.SetFinalResponse(MessageWorkflowExceeded) {
				state.AddError("orchestrator", ErrWorkflowExceeded.Error())
			}
			o.logger.Warn(ctx, "workflow hit iteration ceiling", zap.Int("iterations", state.Iterations()))
			status = StatusFailed
			break
		}

		if err := ctx.Err(); err != nil {
			state.AddError("orchestrator", err.Error())
			state.SetFinalResponse(fmt.Sprintf("Workflow cancelled: %v", err))
			status = StatusCancelled
			break
		}

		iteration := state.nextIteration()
		state.setLoopState(StateDispatching)
		o.logger.Trace(ctx, "dispatching", zap.Int("iteration", iteration))
		status = o.step(ctx, state, iteration)
	}

	loopState := StateDone
	if status == StatusClarificationNeeded {
		loopState = StateClarifying
	}
	state.finish(status, loopState)

	final, _ := state.FinalResponse()
	span.SetAttributes(
		attribute.String("workflow.status", string(status)),
		attribute.Int("workflow.iterations", state.Iterations()),
		attribute.Int("workflow.errors", len(state.Errors())),
	)
	if status == StatusFailed || status == StatusCancelled {
		span.SetStatus(codes.Error, final)
	}

	o.logger.Info(ctx, "workflow finished",
		zap.String("status", string(status)),
		zap.String("final_response", final),
		zap.Any("completed_phases", state.CompletedPhases()),
		zap.Int("iterations", state.Iterations()))
	o.emit(ctx, Event{
		Type:      EventRunFinished,
		RunID:     state.RunID(),
		Iteration: state.Iterations(),
		Status:    status,
		Message:   final,
	})

	return state.Result()
}

// finishedAtCeiling reports whether the last allowed pass already reached a
// terminal success. No agent is dispatched.
func (o *Orchestrator) finishedAtCeiling(state *WorkflowState) (string, bool) {
	action, err := o.supervisor.decide(state.RequestedPhase(), state.CompletedPhases())
	if err != nil {
		return "", false
	}
	switch {
	case action.Kind == ActionFinish && action.Message == MessageAllCompleted:
		return action.Message, true
	case action.Kind == ActionRunPhase && state.IsCompleted(action.Phase):
		return fmt.Sprintf("Phase %s completed successfully", action.Phase), true
	}
	return "", false
}

// step performs one Dispatching → AgentRunning → Merging pass. It returns a
// non-empty status when the run is over.
func (o *Orchestrator) step(ctx context.Context, state *WorkflowState, iteration int) Status {
	action := o.supervisor.Decide(state)

	switch action.Kind {
	case ActionRetry:
		o.logger.Warn(ctx, "supervisor failed, retrying", zap.Int("retry_count", state.RetryCount()))
		o.emit(ctx, Event{Type: EventSupervisorRetry, RunID: state.RunID(), Iteration: iteration})
		return ""

	case ActionFinish:
		state.SetFinalResponse(action.Message)
		if action.Message == MessageAllCompleted {
			return StatusCompleted
		}
		return StatusFailed

	default:
		return o.runPhase(ctx, state, action.Phase, iteration)
	}
}

func (o *Orchestrator) runPhase(ctx context.Context, state *WorkflowState, phase Phase, iteration int) Status {
	agent, ok := o.registry.Lookup(phase)
	if !ok {
		err := fmt.Errorf("%w: no agent registered for phase %q", ErrConfiguration, phase)
		state.AddError("orchestrator", err.Error())
		state.SetFinalResponse(fmt.Sprintf("Unknown phase requested: %s", phase))
		o.logger.Error(ctx, "unknown phase", zap.String("phase", string(phase)))
		return StatusFailed
	}

	// Only an override can point the supervisor at a finished phase.
	if state.IsCompleted(phase) {
		state.SetFinalResponse(fmt.Sprintf("Phase %s completed successfully", phase))
		return StatusCompleted
	}

	ctx = logging.WithPhase(ctx, string(phase))
	ctx, span := o.tracer.Start(ctx, "workflow.phase", trace.WithAttributes(
		attribute.String("workflow.phase", string(phase)),
		attribute.Int("workflow.iteration", iteration),
	))
	defer span.End()

	state.setLoopState(StateAgentRunning)
	o.logger.Info(ctx, "phase started", zap.Int("iteration", iteration))
	o.emit(ctx, Event{Type: EventPhaseStarted, RunID: state.RunID(), Phase: phase, Iteration: iteration})

	started := time.Now()
	result, err := o.invoke(ctx, agent, state.agentInput())
	if err == nil {
		if _, clarify := result.(*ClarificationRequest); !clarify {
			err = o.checkGates(ctx, phase, result)
		}
	}
	elapsed := time.Since(started)

	state.setLoopState(StateMerging)

	if err != nil {
		perr := &PhaseError{Phase: phase, Err: err}
		state.AddError(string(phase), perr.Error())
		attempts := state.RecordPhaseFailure(phase)

		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		o.logger.Warn(ctx, "phase failed", zap.Error(perr), zap.Int("attempt", attempts))
		o.emit(ctx, Event{
			Type:      EventPhaseFailed,
			RunID:     state.RunID(),
			Phase:     phase,
			Iteration: iteration,
			Message:   perr.Error(),
			Duration:  elapsed,
		})

		if attempts >= o.maxPhaseAttempts {
			state.SetFinalResponse(fmt.Sprintf("Phase %s failed after %d attempts: %v", phase, attempts, err))
			return StatusFailed
		}
		return ""
	}

	if cr, ok := result.(*ClarificationRequest); ok {
		state.RequestClarification(cr.Question)
		o.logger.Info(ctx, "phase needs clarification", zap.String("question", cr.Question))
		o.emit(ctx, Event{
			Type:      EventClarification,
			RunID:     state.RunID(),
			Phase:     phase,
			Iteration: iteration,
			Message:   cr.Question,
			Duration:  elapsed,
		})
		return StatusClarificationNeeded
	}

	state.SetPhaseResult(phase, result)
	state.MarkCompleted(phase)

	o.logger.Info(ctx, "phase completed", zap.String("summary", result.Summary()), zap.Duration("elapsed", elapsed))
	o.emit(ctx, Event{
		Type:      EventPhaseCompleted,
		RunID:     state.RunID(),
		Phase:     phase,
		Iteration: iteration,
		Message:   result.Summary(),
		Duration:  elapsed,
	})
	return ""
}

// agentStopGrace bounds the wait for an agent to return after its context ends.
const agentStopGrace = 2 * time.Second

type agentOutcome struct {
	result PhaseResult
	err    error
}

// invoke runs the agent under the phase deadline. A panicking agent counts
// as a failed attempt.
func (o *Orchestrator) invoke(ctx context.Context, agent PhaseAgent, in AgentInput) (PhaseResult, error) {
	if o.phaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.phaseTimeout)
		defer cancel()
	}

	done := make(chan agentOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- agentOutcome{err: fmt.Errorf("%w: panic: %v", ErrAgentFailure, r)}
			}
		}()
		res, err := agent.Run(ctx, in)
		done <- agentOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.result == nil {
			return nil, fmt.Errorf("%w: agent returned no result", ErrAgentFailure)
		}
		return out.result, out.err
	case <-ctx.Done():
		// Give the agent a moment to observe cancellation so it does not
		// overlap with the next attempt.
		select {
		case <-done:
		case <-time.After(agentStopGrace):
			o.logger.Warn(ctx, "agent still running after cancellation", zap.String("phase", string(agent.Phase())))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrPhaseTimeout, o.phaseTimeout)
		}
		return nil, ctx.Err()
	}
}
