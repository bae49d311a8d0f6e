package orchestrator

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkflowState is the single record threaded through one run. Only the
// orchestrator mutates it; agents see an AgentInput copy.
//
// The mutex exists so that HTTP handlers can snapshot a run while it is in
// flight. The driver itself is strictly sequential.
type WorkflowState struct {
	mu sync.RWMutex

	runID          string
	request        string
	requestedPhase Phase
	input          PhaseInput

	completed     []Phase
	errors        []ErrorRecord
	retryCount    int
	phaseResults  map[Phase]PhaseResult
	phaseAttempts map[Phase]int

	finalResponse string
	finalSet      bool
	clarification string
	status        Status
	loopState     LoopState
	iterations    int

	startedAt  time.Time
	finishedAt time.Time

	now func() time.Time
}

// StateOption configures a new WorkflowState.
type StateOption func(*WorkflowState)

// WithRequestedPhase sets an explicit phase override.
func WithRequestedPhase(p Phase) StateOption {
	return func(s *WorkflowState) { s.requestedPhase = p }
}

// WithPhaseInput supplies phase-scoped input data.
func WithPhaseInput(in PhaseInput) StateOption {
	return func(s *WorkflowState) { s.input = in }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) StateOption {
	return func(s *WorkflowState) { s.runID = id }
}

// WithCompletedPhases pre-seeds completed phases.
func WithCompletedPhases(phases ...Phase) StateOption {
	return func(s *WorkflowState) {
		for _, p := range phases {
			s.markCompleted(p)
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) StateOption {
	return func(s *WorkflowState) { s.now = now }
}

// NewWorkflowState creates the state for one run.
func NewWorkflowState(request string, opts ...StateOption) *WorkflowState {
	s := &WorkflowState{
		runID:         uuid.NewString(),
		request:       request,
		phaseResults:  make(map[Phase]PhaseResult),
		phaseAttempts: make(map[Phase]int),
		status:        StatusPending,
		loopState:     StateDispatching,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WorkflowState) RunID() string {
	return s.runID
}

func (s *WorkflowState) Request() string {
	return s.request
}

func (s *WorkflowState) RequestedPhase() Phase {
	return s.requestedPhase
}

func (s *WorkflowState) Input() PhaseInput {
	in := s.input
	in.Resources = slices.Clone(s.input.Resources)
	return in
}

// MarkCompleted records p as finished. Marking twice is a no-op; it
// reports whether the phase was newly added.
func (s *WorkflowState) MarkCompleted(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCompleted(p)
}

func (s *WorkflowState) markCompleted(p Phase) bool {
	if slices.Contains(s.completed, p) {
		return false
	}
	s.completed = append(s.completed, p)
	return true
}

// IsCompleted reports whether p has finished.
func (s *WorkflowState) IsCompleted(p Phase) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.completed, p)
}

// CompletedPhases returns completed phases in execution order.
func (s *WorkflowState) CompletedPhases() []Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.completed)
}

// AddError appends to the error log.
func (s *WorkflowState) AddError(agent, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{Agent: agent, Message: message, Timestamp: s.now()})
}

// Errors returns a copy of the error log.
func (s *WorkflowState) Errors() []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.errors)
}

// IncrementRetry bumps the supervisor retry counter and returns the new value.
func (s *WorkflowState) IncrementRetry() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
	return s.retryCount
}

func (s *WorkflowState) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// SetPhaseResult stores the payload produced by p.
func (s *WorkflowState) SetPhaseResult(p Phase, r PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phaseResults[p] = r
}

// PhaseResult returns the payload for p, if any.
func (s *WorkflowState) PhaseResult(p Phase) (PhaseResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.phaseResults[p]
	return r, ok
}

// PhaseResults returns a copy of all payloads.
func (s *WorkflowState) PhaseResults() map[Phase]PhaseResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Phase]PhaseResult, len(s.phaseResults))
	for k, v := range s.phaseResults {
		out[k] = v
	}
	return out
}

// RecordPhaseFailure counts a failed attempt at p and returns the total.
func (s *WorkflowState) RecordPhaseFailure(p Phase) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phaseAttempts[p]++
	return s.phaseAttempts[p]
}

// PhaseStatus reports whether p is completed, has failed at least once, or is pending.
func (s *WorkflowState) PhaseStatus(p Phase) PhaseStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case slices.Contains(s.completed, p):
		return PhaseCompleted
	case s.phaseAttempts[p] > 0:
		return PhaseFailed
	default:
		return PhasePending
	}
}

// SetFinalResponse sets the terminal message. Only the first call takes
// effect; it reports whether this call set it.
func (s *WorkflowState) SetFinalResponse(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalSet {
		return false
	}
	s.finalResponse = msg
	s.finalSet = true
	return true
}

// FinalResponse returns the terminal message and whether one is set.
func (s *WorkflowState) FinalResponse() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalResponse, s.finalSet
}

// RequestClarification records the question an agent needs answered.
func (s *WorkflowState) RequestClarification(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clarification = question
}

// Clarification returns the pending question, or "".
func (s *WorkflowState) Clarification() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clarification
}

func (s *WorkflowState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *WorkflowState) LoopState() LoopState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopState
}

// Iterations returns how many supervisor decisions the driver requested.
func (s *WorkflowState) Iterations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iterations
}

func (s *WorkflowState) setLoopState(ls LoopState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopState = ls
}

func (s *WorkflowState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.startedAt = s.now()
}

func (s *WorkflowState) nextIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	return s.iterations
}

func (s *WorkflowState) finish(status Status, ls LoopState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.loopState = ls
	s.finishedAt = s.now()
}

// agentInput copies what an agent is allowed to see.
func (s *WorkflowState) agentInput() AgentInput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AgentInput{
		RunID:           s.runID,
		Request:         s.request,
		RequestedPhase:  s.requestedPhase,
		Input:           s.Input(),
		CompletedPhases: slices.Clone(s.completed),
	}
}

// Result is the caller-facing document for a run.
type Result struct {
	RunID           string                `json:"run_id"`
	Status          Status                `json:"status"`
	Request         string                `json:"request"`
	RequestedPhase  Phase                 `json:"requested_phase,omitempty"`
	FinalResponse   string                `json:"final_response,omitempty"`
	Clarification   string                `json:"clarification,omitempty"`
	CompletedPhases []Phase               `json:"completed_phases"`
	PhaseResults    map[Phase]PhaseResult `json:"phase_results"`
	Errors          []ErrorRecord         `json:"errors"`
	RetryCount      int                   `json:"retry_count"`
	Iterations      int                   `json:"iterations"`
	LoopState       LoopState             `json:"loop_state"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      time.Time             `json:"finished_at"`
}

// Result snapshots the state.
func (s *WorkflowState) Result() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[Phase]PhaseResult, len(s.phaseResults))
	for k, v := range s.phaseResults {
		results[k] = v
	}
	completed := slices.Clone(s.completed)
	if completed == nil {
		completed = []Phase{}
	}
	errs := slices.Clone(s.errors)
	if errs == nil {
		errs = []ErrorRecord{}
	}

	return &Result{
		RunID:           s.runID,
		Status:          s.status,
		Request:         s.request,
		RequestedPhase:  s.requestedPhase,
		FinalResponse:   s.finalResponse,
		Clarification:   s.clarification,
		CompletedPhases: completed,
		PhaseResults:    results,
		Errors:          errs,
		RetryCount:      s.retryCount,
		Iterations:      s.iterations,
		LoopState:       s.loopState,
		StartedAt:       s.startedAt,
		FinishedAt:      s.finishedAt,
	}
}
