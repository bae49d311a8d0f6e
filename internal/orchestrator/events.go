package orchestrator

import (
	"context"
	"time"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventPhaseStarted    EventType = "phase.started"
	EventPhaseCompleted  EventType = "phase.completed"
	EventPhaseFailed     EventType = "phase.failed"
	EventSupervisorRetry EventType = "supervisor.retry"
	EventClarification   EventType = "run.clarification"
	EventRunFinished     EventType = "run.finished"
)

// Event describes something that happened during a run.
type Event struct {
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id"`
	Phase     Phase         `json:"phase,omitempty"`
	Iteration int           `json:"iteration"`
	Status    Status        `json:"status,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observer receives events synchronously from the driver. Implementations
// must not block for long.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) Observe(ctx context.Context, event Event) { f(ctx, event) }

func (o *Orchestrator) emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, obs := range o.observers {
		obs.Observe(ctx, event)
	}
}
