// Package orchestrator drives a DevOps workflow through its phases.
//
// # Overview
//
// A workflow run threads one WorkflowState through a loop:
//
//	Dispatching → AgentRunning → Merging → Dispatching … → Done
//
// The Supervisor inspects the state and picks the next phase (or finishes),
// the Orchestrator dispatches to the PhaseAgent registered for that phase,
// then merges the agent's PhaseResult back into the state. The phase order is
// fixed:
//
//	cicd → infra → k8s → monitoring → security
//
// An explicit phase override always wins. The application phase ("app") is
// only reachable that way.
//
// # Termination
//
// The loop stops when a final response is set, when an agent asks for
// clarification, or when the iteration ceiling is hit. Agent failures are
// recorded in the state's error log and never escape Run; a phase that keeps
// failing is abandoned after the configured number of attempts.
//
// # Gates
//
// Gates run over every successful PhaseResult before it is merged. The secret
// scanner is registered as a gate so that generated artifacts never carry
// credentials.
//
// # Observers
//
// Observers receive lifecycle events (run started, phase completed, run
// finished). The NATS publisher and the Prometheus metrics are both observers.
package orchestrator
