package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/devopsd/internal/logging"
	"github.com/fyrsmithlabs/devopsd/internal/telemetry"
)

func TestOrchestrator_RunsAllPhasesInOrder(t *testing.T) {
	o := New(mustRegistry(allOK()...))

	res := o.Execute(context.Background(), "Create a Node.js application with CI/CD pipeline")

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, MessageAllCompleted, res.FinalResponse)
	assert.Equal(t, PriorityOrder(), res.CompletedPhases)
	assert.Len(t, res.PhaseResults, 5)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 6, res.Iterations)
	assert.Equal(t, StateDone, res.LoopState)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestOrchestrator_AllCompletedFinishesOnFirstIteration(t *testing.T) {
	agents := make([]PhaseAgent, 0)
	mocks := make([]*MockAgent, 0)
	for _, p := range KnownPhases() {
		m := NewMockAgent(p)
		mocks = append(mocks, m)
		agents = append(agents, m)
	}
	o := New(mustRegistry(agents...))

	state := NewWorkflowState("anything", WithCompletedPhases(PriorityOrder()...))
	res := o.Run(context.Background(), state)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, StateDone, res.LoopState)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "All phases completed successfully", res.FinalResponse)
	for _, m := range mocks {
		m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	}
}

func TestOrchestrator_TerminatesWhenEveryPhaseFails(t *testing.T) {
	boom := errors.New("boom")
	var agents []PhaseAgent
	for _, p := range KnownPhases() {
		agents = append(agents, failingAgent(p, boom))
	}

	t.Run("iteration ceiling", func(t *testing.T) {
		o := New(mustRegistry(agents...), WithMaxPhaseAttempts(1000))

		res := o.Execute(context.Background(), "always fails")

		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, "Workflow exceeded maximum phases", res.FinalResponse)
		assert.Equal(t, DefaultMaxIterations, res.Iterations)
		assert.Empty(t, res.CompletedPhases)
		// ten phase failures plus the ceiling marker
		require.Len(t, res.Errors, DefaultMaxIterations+1)
		assert.Equal(t, "orchestrator", res.Errors[len(res.Errors)-1].Agent)
		assert.Equal(t, "cicd", res.Errors[0].Agent)
		assert.Contains(t, res.Errors[0].Message, "boom")
	})

	t.Run("phase attempts", func(t *testing.T) {
		o := New(mustRegistry(agents...))

		res := o.Execute(context.Background(), "always fails")

		assert.Equal(t, StatusFailed, res.Status)
		assert.Equal(t, 3, res.Iterations)
		assert.Equal(t, "Phase cicd failed after 3 attempts: boom", res.FinalResponse)
		assert.Len(t, res.Errors, 3)
	})

	t.Run("custom ceiling", func(t *testing.T) {
		o := New(mustRegistry(agents...), WithMaxIterations(4), WithMaxPhaseAttempts(1000))

		res := o.Execute(context.Background(), "always fails")

		assert.Equal(t, 4, res.Iterations)
		assert.Equal(t, MessageWorkflowExceeded, res.FinalResponse)
	})
}

func TestOrchestrator_AgentErrorDoesNotAbortLoop(t *testing.T) {
	cicd := NewMockAgent(PhaseCICD)
	cicd.On("Run", mock.Anything, mock.Anything).Return(nil, errors.New("template engine fault")).Once()
	cicd.On("Run", mock.Anything, mock.Anything).Return(&PlaceholderResult{Phase: PhaseCICD, Message: "ok"}, nil).Once()

	agents := []PhaseAgent{cicd}
	for _, p := range []Phase{PhaseInfra, PhaseK8s, PhaseMonitoring, PhaseSecurity} {
		agents = append(agents, okAgent(p))
	}
	o := New(mustRegistry(agents...))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, PriorityOrder(), res.CompletedPhases)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "cicd", res.Errors[0].Agent)
	assert.Contains(t, res.Errors[0].Message, "template engine fault")
	cicd.AssertNumberOfCalls(t, "Run", 2)
}

func TestOrchestrator_CompletedPhaseStaysCompletedAfterLaterFailure(t *testing.T) {
	o := New(mustRegistry(
		okAgent(PhaseCICD),
		failingAgent(PhaseInfra, errors.New("terraform broke")),
	))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []Phase{PhaseCICD}, res.CompletedPhases)
	assert.Contains(t, res.PhaseResults, PhaseCICD)
	assert.NotContains(t, res.PhaseResults, PhaseInfra)
}

func TestOrchestrator_ClarificationPauses(t *testing.T) {
	infra := &funcAgent{phase: PhaseInfra, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		return &ClarificationRequest{Phase: PhaseInfra, Question: "Which cloud provider?"}, nil
	}}
	k8s := NewMockAgent(PhaseK8s)
	o := New(mustRegistry(okAgent(PhaseCICD), infra, k8s))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusClarificationNeeded, res.Status)
	assert.Equal(t, StateClarifying, res.LoopState)
	assert.Equal(t, "Which cloud provider?", res.Clarification)
	assert.Empty(t, res.FinalResponse)
	assert.Equal(t, []Phase{PhaseCICD}, res.CompletedPhases)
	assert.Empty(t, res.Errors)
	k8s.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestOrchestrator_RequestedPhaseOverride(t *testing.T) {
	cicd := NewMockAgent(PhaseCICD)
	o := New(mustRegistry(cicd, okAgent(PhaseApp)))

	res := o.Execute(context.Background(), "scaffold", WithRequestedPhase(PhaseApp))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Phase app completed successfully", res.FinalResponse)
	assert.Equal(t, []Phase{PhaseApp}, res.CompletedPhases)
	assert.Equal(t, 2, res.Iterations)
	cicd.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestOrchestrator_UnknownRequestedPhaseIsRejected(t *testing.T) {
	cicd := NewMockAgent(PhaseCICD)
	o := New(mustRegistry(cicd))

	res := o.Execute(context.Background(), "req", WithRequestedPhase(Phase("deploy")))

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "Unknown phase requested: deploy", res.FinalResponse)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "orchestrator", res.Errors[0].Agent)
	assert.Contains(t, res.Errors[0].Message, ErrConfiguration.Error())
	cicd.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestOrchestrator_ExecutePhase(t *testing.T) {
	o := New(mustRegistry(allOK()...))

	res, err := o.ExecutePhase(context.Background(), PhaseSecurity, "harden it")
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseSecurity}, res.CompletedPhases)
	assert.Equal(t, PhaseSecurity, res.RequestedPhase)

	_, err = o.ExecutePhase(context.Background(), Phase("deploy"), "req")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestOrchestrator_SupervisorFailureFinishes(t *testing.T) {
	o := New(mustRegistry(allOK()...))
	state := NewWorkflowState("req", WithCompletedPhases(Phase("bogus")))

	res := o.Run(context.Background(), state)

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.FinalResponse, "Error in supervisor agent: "))
	assert.Equal(t, 3, res.RetryCount)
	assert.Equal(t, 3, res.Iterations)
}

func TestOrchestrator_PhaseTimeout(t *testing.T) {
	slow := &funcAgent{phase: PhaseCICD, fn: func(ctx context.Context, _ AgentInput) (PhaseResult, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return nil, ctx.Err()
	}}
	o := New(mustRegistry(slow), WithPhaseTimeout(20*time.Millisecond), WithMaxPhaseAttempts(2))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Message, "phase timeout")
	assert.Contains(t, res.FinalResponse, "Phase cicd failed after 2 attempts")
}

func TestOrchestrator_PanickingAgentIsRecorded(t *testing.T) {
	bad := &funcAgent{phase: PhaseCICD, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		panic("nil map")
	}}
	o := New(mustRegistry(bad), WithMaxPhaseAttempts(1))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "panic: nil map")
}

func TestOrchestrator_NilResultIsFailure(t *testing.T) {
	empty := &funcAgent{phase: PhaseCICD, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		return nil, nil
	}}
	o := New(mustRegistry(empty), WithMaxPhaseAttempts(1))

	res := o.Execute(context.Background(), "req")

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "agent returned no result")
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cicd := NewMockAgent(PhaseCICD)
	res := New(mustRegistry(cicd)).Execute(ctx, "req")

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Contains(t, res.FinalResponse, "Workflow cancelled")
	cicd.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestOrchestrator_AgentSeesInput(t *testing.T) {
	var got AgentInput
	infra := &funcAgent{phase: PhaseInfra, fn: func(_ context.Context, in AgentInput) (PhaseResult, error) {
		got = in
		return &PlaceholderResult{Phase: PhaseInfra}, nil
	}}
	o := New(mustRegistry(infra))

	o.Execute(context.Background(), "vpc please",
		WithRequestedPhase(PhaseInfra),
		WithRunID("run-42"),
		WithPhaseInput(PhaseInput{CloudProvider: "azure", Region: "eastus", Deploy: true}),
	)

	assert.Equal(t, "run-42", got.RunID)
	assert.Equal(t, "vpc please", got.Request)
	assert.Equal(t, PhaseInfra, got.RequestedPhase)
	assert.Equal(t, "azure", got.Input.CloudProvider)
	assert.True(t, got.Input.Deploy)
}

func TestOrchestrator_Gates(t *testing.T) {
	t.Run("gate rewrites artifacts", func(t *testing.T) {
		cicd := &funcAgent{phase: PhaseCICD, fn: func(context.Context, AgentInput) (PhaseResult, error) {
			return &artifactResult{phase: PhaseCICD, files: map[string]string{".gitlab-ci.yml": "token: hunter2"}}, nil
		}}
		redact := GateFunc{GateName: "redact", Fn: func(_ context.Context, _ Phase, r PhaseResult) error {
			if ap, ok := r.(ArtifactProducer); ok {
				for k, v := range ap.Artifacts() {
					ap.Artifacts()[k] = strings.ReplaceAll(v, "hunter2", "[REDACTED]")
				}
			}
			return nil
		}}
		o := New(mustRegistry(cicd), WithGate(redact))

		res := o.Execute(context.Background(), "req", WithRequestedPhase(PhaseCICD))

		got := res.PhaseResults[PhaseCICD].(ArtifactProducer).Artifacts()
		assert.Equal(t, "token: [REDACTED]", got[".gitlab-ci.yml"])
	})

	t.Run("gate rejection is a failed attempt", func(t *testing.T) {
		reject := GateFunc{GateName: "strict", Fn: func(context.Context, Phase, PhaseResult) error {
			return errors.New("secret found")
		}}
		o := New(mustRegistry(okAgent(PhaseCICD)), WithGate(reject), WithMaxPhaseAttempts(1))

		res := o.Execute(context.Background(), "req")

		assert.Equal(t, StatusFailed, res.Status)
		assert.Empty(t, res.CompletedPhases)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0].Message, "gate strict rejected result: secret found")
	})
}

func TestOrchestrator_EmitsEvents(t *testing.T) {
	var mu sync.Mutex
	var types []EventType
	obs := ObserverFunc(func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type)
		assert.NotEmpty(t, e.RunID)
		assert.False(t, e.Timestamp.IsZero())
	})

	o := New(mustRegistry(okAgent(PhaseCICD), failingAgent(PhaseInfra, errors.New("x"))),
		WithObserver(obs), WithMaxPhaseAttempts(1))
	o.Execute(context.Background(), "req")

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventPhaseStarted, EventPhaseCompleted,
		EventPhaseStarted, EventPhaseFailed,
		EventRunFinished,
	}, types)
}

func TestOrchestrator_TracesAndLogs(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tl := logging.NewTestLogger()

	o := New(mustRegistry(allOK()...), WithTracer(tt.Tracer("test")), WithLogger(tl.Logger))
	res := o.Execute(context.Background(), "req", WithRunID("run-9"))
	require.Equal(t, StatusCompleted, res.Status)

	tt.AssertSpanExists(t, "workflow.run")
	tt.AssertSpanAttribute(t, "workflow.run", "workflow.status", "completed")
	tt.AssertSpanAttribute(t, "workflow.run", "workflow.run_id", "run-9")
	assert.Len(t, tt.SpansByName("workflow.phase"), 5)

	tl.AssertLogged(t, zapcore.InfoLevel, "workflow finished")
	tl.AssertField(t, "workflow started", "run_id", "run-9")
	tl.AssertField(t, "phase completed", "phase", "cicd")
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(okAgent(PhaseCICD), okAgent(PhaseCICD))
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	r := mustRegistry(okAgent(PhaseInfra), okAgent(PhaseCICD), okAgent(PhaseApp))
	assert.Equal(t, []Phase{PhaseCICD, PhaseInfra, PhaseApp}, r.Phases())

	_, ok := r.Lookup(PhaseK8s)
	assert.False(t, ok)
}

// Every phase fails once before succeeding, so the tenth pass completes the
// last phase exactly at the ceiling.
func TestOrchestrator_CompletesOnLastAllowedIteration(t *testing.T) {
	var agents []PhaseAgent
	for _, p := range PriorityOrder() {
		var calls atomic.Int32
		agents = append(agents, &funcAgent{phase: p, fn: func(context.Context, AgentInput) (PhaseResult, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("flaky")
			}
			return &PlaceholderResult{Phase: p, Message: "ok"}, nil
		}})
	}
	o := New(mustRegistry(agents...))

	res := o.Execute(context.Background(), "flaky everywhere")

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, MessageAllCompleted, res.FinalResponse)
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Equal(t, PriorityOrder(), res.CompletedPhases)
	assert.Len(t, res.Errors, len(PriorityOrder()))
	for _, rec := range res.Errors {
		assert.NotEqual(t, "orchestrator", rec.Agent)
	}
}

func TestOrchestrator_RequestedPhaseCompletesAtCeiling(t *testing.T) {
	var calls atomic.Int32
	infra := &funcAgent{phase: PhaseInfra, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return &PlaceholderResult{Phase: PhaseInfra, Message: "ok"}, nil
	}}
	o := New(mustRegistry(infra), WithMaxIterations(3), WithMaxPhaseAttempts(5))

	res, err := o.ExecutePhase(context.Background(), PhaseInfra, "req")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Phase infra completed successfully", res.FinalResponse)
	assert.Equal(t, 3, res.Iterations)
}

// An agent that ignores its deadline is waited for before the next attempt.
func TestOrchestrator_TimedOutAgentDoesNotOverlap(t *testing.T) {
	var running, maxRunning atomic.Int32
	stubborn := &funcAgent{phase: PhaseCICD, fn: func(context.Context, AgentInput) (PhaseResult, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return &PlaceholderResult{Phase: PhaseCICD, Message: "late"}, nil
	}}
	o := New(mustRegistry(stubborn), WithPhaseTimeout(10*time.Millisecond), WithMaxPhaseAttempts(2))

	res := o.Execute(context.Background(), "req")

	assert.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Message, "phase timeout")
	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, int32(0), running.Load())
}
