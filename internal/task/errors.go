package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/stockroom/internal/capability"
)

// Common errors returned by the task engine.
var (
	// ErrConfiguration means the chosen provider cannot serve the request.
	ErrConfiguration = errors.New("provider configuration error")

	// ErrConflict means an active task already exists for the same
	// (caller, subject, task type) and the type is exclusive.
	ErrConflict = errors.New("an active task already exists for this subject")

	// ErrInvalidRequest covers malformed admission requests.
	ErrInvalidRequest = errors.New("invalid task request")

	// ErrNotFound is returned for unknown or expired task IDs.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a state change would leave a
	// terminal state or skip the state machine.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrQueueFull means the worker pool cannot accept more work.
	ErrQueueFull = errors.New("task queue is full")

	// ErrTimeout marks a task that exceeded its wall-clock budget.
	ErrTimeout = errors.New("task exceeded its time budget")
)

// Error kinds recorded on failed tasks.
const (
	KindTimeout     = "timeout"
	KindPersistence = "persistence"
	KindShutdown    = "shutdown"
)

// ConfigurationError reports why a provider cannot serve a request.
type ConfigurationError struct {
	Provider string
	Missing  []capability.Name
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, c := range e.Missing {
			names[i] = string(c)
		}
		return fmt.Sprintf("provider %s does not support %s", e.Provider, strings.Join(names, ", "))
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ConflictError carries the ID of the task that blocked admission.
type ConflictError struct {
	ExistingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (task %s)", ErrConflict.Error(), e.ExistingID)
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
