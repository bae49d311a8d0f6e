package orchestrator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowState_MarkCompletedIsIdempotent(t *testing.T) {
	state := NewWorkflowState("req")

	assert.True(t, state.MarkCompleted(PhaseCICD))
	assert.False(t, state.MarkCompleted(PhaseCICD))
	assert.True(t, state.MarkCompleted(PhaseInfra))
	assert.False(t, state.MarkCompleted(PhaseCICD))

	assert.Equal(t, []Phase{PhaseCICD, PhaseInfra}, state.CompletedPhases())
}

func TestWorkflowState_FinalResponseSetOnce(t *testing.T) {
	state := NewWorkflowState("req")

	_, set := state.FinalResponse()
	assert.False(t, set)

	assert.True(t, state.SetFinalResponse("first"))
	assert.False(t, state.SetFinalResponse("second"))

	msg, set := state.FinalResponse()
	assert.True(t, set)
	assert.Equal(t, "first", msg)
}

func TestWorkflowState_ErrorsAppendOnly(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	state := NewWorkflowState("req", WithClock(func() time.Time { return fixed }))

	state.AddError("cicd", "boom")
	snapshot := state.Errors()
	state.AddError("infra", "bang")

	require.Len(t, snapshot, 1)
	errs := state.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, ErrorRecord{Agent: "cicd", Message: "boom", Timestamp: fixed}, errs[0])
	assert.Equal(t, "infra", errs[1].Agent)
}

func TestWorkflowState_PhaseStatus(t *testing.T) {
	state := NewWorkflowState("req")
	assert.Equal(t, PhasePending, state.PhaseStatus(PhaseInfra))

	assert.Equal(t, 1, state.RecordPhaseFailure(PhaseInfra))
	assert.Equal(t, PhaseFailed, state.PhaseStatus(PhaseInfra))

	state.MarkCompleted(PhaseInfra)
	assert.Equal(t, PhaseCompleted, state.PhaseStatus(PhaseInfra))
}

func TestWorkflowState_AgentInputIsACopy(t *testing.T) {
	state := NewWorkflowState("deploy it",
		WithRunID("run-7"),
		WithPhaseInput(PhaseInput{CloudProvider: "gcp", Resources: []string{"vpc"}}),
		WithCompletedPhases(PhaseCICD),
	)

	in := state.agentInput()
	in.Input.Resources[0] = "mutated"
	in.CompletedPhases[0] = PhaseK8s

	assert.Equal(t, "run-7", in.RunID)
	assert.Equal(t, "deploy it", in.Request)
	assert.Equal(t, []string{"vpc"}, state.Input().Resources)
	assert.Equal(t, []Phase{PhaseCICD}, state.CompletedPhases())
}

func TestWorkflowState_ResultJSON(t *testing.T) {
	state := NewWorkflowState("req", WithRunID("run-1"))
	state.SetPhaseResult(PhaseK8s, &PlaceholderResult{Phase: PhaseK8s, Message: "Kubernetes agent would run here"})
	state.MarkCompleted(PhaseK8s)

	data, err := json.Marshal(state.Result())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "pending", doc["status"])
	assert.Equal(t, "dispatching", doc["loop_state"])
	assert.Equal(t, []any{"k8s"}, doc["completed_phases"])
	assert.Equal(t, []any{}, doc["errors"])

	results := doc["phase_results"].(map[string]any)
	assert.Equal(t, "Kubernetes agent would run here", results["k8s"].(map[string]any)["message"])
}

func TestParsePhase(t *testing.T) {
	for _, p := range KnownPhases() {
		got, err := ParsePhase(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePhase("deploy")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestPhaseError_Classification(t *testing.T) {
	plain := &PhaseError{Phase: PhaseCICD, Err: assert.AnError}
	assert.ErrorIs(t, plain, ErrAgentFailure)
	assert.ErrorIs(t, plain, assert.AnError)
	assert.Equal(t, "phase cicd: "+assert.AnError.Error(), plain.Error())

	validation := &PhaseError{Phase: PhaseInfra, Err: ErrValidation}
	assert.ErrorIs(t, validation, ErrValidation)
	assert.NotErrorIs(t, validation, ErrAgentFailure)
}
