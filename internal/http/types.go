package http

import "github.com/fyrsmithlabs/devopsd/internal/orchestrator"

// WorkflowRequest is the request body for POST /api/v1/workflows.
type WorkflowRequest struct {
	Request string                   `json:"request"`
	Phase   string                   `json:"phase,omitempty"`
	Input   *orchestrator.PhaseInput `json:"input,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
