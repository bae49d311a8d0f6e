package orchestrator

// PhaseResult is the payload a successful agent contributes. Each agent
// defines its own concrete variant listing the fields it produces.
type PhaseResult interface {
	ResultPhase() Phase
	Summary() string
}

// ArtifactProducer is implemented by results that carry generated files,
// keyed by file name. Gates may rewrite the map's values in place.
type ArtifactProducer interface {
	Artifacts() map[string]string
}

// ClarificationRequest is returned by an agent that cannot proceed without
// more information from the user. The driver pauses instead of marking the
// phase complete.
type ClarificationRequest struct {
	Phase    Phase  `json:"phase"`
	Question string `json:"question"`
}

func (c *ClarificationRequest) ResultPhase() Phase { return c.Phase }
func (c *ClarificationRequest) Summary() string    { return c.Question }

// PlaceholderResult acknowledges a phase that has no implementation yet.
type PlaceholderResult struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

func (p *PlaceholderResult) ResultPhase() Phase { return p.Phase }
func (p *PlaceholderResult) Summary() string    { return p.Message }
