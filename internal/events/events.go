package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TypeTaskProgress is the event type for task state and progress changes.
const TypeTaskProgress = "task.progress"

// ProgressEvent is a snapshot of a task's observable state.
type ProgressEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type         string    `json:"type"`
	TaskID       string    `json:"task_id"`
	State        string    `json:"state"`
	Progress     int       `json:"progress_percentage"`
	CurrentStep  string    `json:"current_step,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Terminal     bool      `json:"terminal"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewProgressEvent creates a ProgressEvent stamped with a fresh ID and time.
func NewProgressEvent(taskID, state string, progress int, step, errMsg string, terminal bool) *ProgressEvent {
	return &ProgressEvent{
		ID:           uuid.New(),
		Type:         TypeTaskProgress,
		TaskID:       taskID,
		State:        state,
		Progress:     progress,
		CurrentStep:  step,
		ErrorMessage: errMsg,
		Terminal:     terminal,
		CreatedAt:    time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *ProgressEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the task engine to publish progress without knowing who listens.
type EventEmitter interface {
	// EmitEvent publishes the given event. It must not block on slow consumers.
	EmitEvent(ctx context.Context, event *ProgressEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *ProgressEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *ProgressEvent) error {
	return f(ctx, event)
}
