package task

import (
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/provider"
)

// State is the lifecycle position of a task.
type State string

// Task states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransitionTo reports whether s -> next is allowed.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StatePending:
		return next == StateRunning || next == StateCancelled
	case StateRunning:
		return next == StateCompleted || next == StateFailed || next == StateCancelled
	default:
		return false
	}
}

// Type is the kind of work a task performs.
type Type string

// TypePartEnrichment fetches capability artifacts for a part and merges
// them into the part record.
const TypePartEnrichment Type = "part_enrichment"

// Known reports whether t is a task type this engine can run.
func (t Type) Known() bool {
	return t == TypePartEnrichment
}

// Task is a unit of asynchronous work.
type Task struct {
	ID                    string            `json:"id"`
	CallerID              string            `json:"caller_id"`
	SubjectID             string            `json:"subject_id"`
	Type                  Type              `json:"task_type"`
	RequestedCapabilities []capability.Name `json:"requested_capabilities"`
	Provider              string            `json:"provider"`
	Params                map[string]any    `json:"params,omitempty"`
	State                 State             `json:"state"`
	Progress              int               `json:"progress_percentage"`
	CurrentStep           string            `json:"current_step"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	ErrorKind             string            `json:"error_kind,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	StartedAt             *time.Time        `json:"started_at,omitempty"`
	FinishedAt            *time.Time        `json:"finished_at,omitempty"`
	Result                *Result           `json:"result,omitempty"`
}

// Result is the payload produced by a task. On failure it holds whatever
// capabilities succeeded before the failing one.
type Result struct {
	Artifacts map[capability.Name]provider.Artifact `json:"artifacts"`
	Succeeded []capability.Name                     `json:"succeeded"`
	Partial   bool                                  `json:"partial"`
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.RequestedCapabilities = append([]capability.Name(nil), t.RequestedCapabilities...)
	if t.Params != nil {
		c.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		c.FinishedAt = &f
	}
	if t.Result != nil {
		c.Result = t.Result.clone()
	}
	return &c
}

func (r *Result) clone() *Result {
	c := &Result{
		Artifacts: make(map[capability.Name]provider.Artifact, len(r.Artifacts)),
		Succeeded: append([]capability.Name(nil), r.Succeeded...),
		Partial:   r.Partial,
	}
	for k, v := range r.Artifacts {
		c.Artifacts[k] = v
	}
	return c
}
