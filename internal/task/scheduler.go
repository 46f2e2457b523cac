package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/events"
)

// Request is an admission request.
type Request struct {
	CallerID     string
	SubjectID    string
	Type         Type
	Provider     string
	Capabilities []string
	Params       map[string]any
}

// Dispatcher hands admitted task IDs to the execution side. Dispatch must
// not block; it returns an error wrapping ErrQueueFull when saturated.
type Dispatcher interface {
	Dispatch(taskID string) error
}

// SchedulerConfig configures admission.
type SchedulerConfig struct {
	// ExclusiveTypes are task types limited to one active task per
	// (caller, subject).
	ExclusiveTypes []Type
}

// Scheduler admits and cancels tasks. It never performs network I/O.
type Scheduler struct {
	registry   *capability.Registry
	store      Store
	dispatcher Dispatcher
	emitter    events.EventEmitter
	exclusive  map[Type]bool
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	registry *capability.Registry,
	store Store,
	dispatcher Dispatcher,
	emitter events.EventEmitter,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	exclusive := make(map[Type]bool, len(cfg.ExclusiveTypes))
	for _, t := range cfg.ExclusiveTypes {
		exclusive[t] = true
	}
	return &Scheduler{
		registry:   registry,
		store:      store,
		dispatcher: dispatcher,
		emitter:    emitter,
		exclusive:  exclusive,
		logger:     logger.With("component", "task_scheduler"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Admit validates req, records a pending task and dispatches it. Every
// rejection happens before the task is visible in the store, except a
// saturated queue, which removes the just-created record before returning.
func (s *Scheduler) Admit(ctx context.Context, req Request) (*Task, error) {
	caps, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	t := &Task{
		ID:                    s.newID(),
		CallerID:              req.CallerID,
		SubjectID:             req.SubjectID,
		Type:                  req.Type,
		RequestedCapabilities: caps,
		Provider:              req.Provider,
		Params:                req.Params,
		State:                 StatePending,
		CurrentStep:           "queued",
		CreatedAt:             s.now().UTC(),
	}

	if err := s.store.Create(t, s.exclusive[req.Type]); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.logger.InfoContext(ctx, "rejected duplicate task",
				"caller_id", req.CallerID,
				"subject_id", req.SubjectID,
				"task_type", req.Type,
				"existing_task_id", conflict.ExistingID)
		}
		return nil, err
	}

	if err := s.dispatcher.Dispatch(t.ID); err != nil {
		s.store.Remove(t.ID)
		s.logger.WarnContext(ctx, "task dispatch failed, admission rolled back",
			"task_id", t.ID,
			"error", err)
		if errors.Is(err, ErrQueueFull) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueFull, err)
	}

	s.logger.InfoContext(ctx, "task admitted",
		"task_id", t.ID,
		"task_type", t.Type,
		"provider", t.Provider,
		"capabilities", len(caps))
	return t.Clone(), nil
}

// validate checks the request shape and provider capabilities and returns
// the deduplicated capability list in request order.
func (s *Scheduler) validate(req Request) ([]capability.Name, error) {
	switch {
	case strings.TrimSpace(req.CallerID) == "":
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidRequest)
	case strings.TrimSpace(req.SubjectID) == "":
		return nil, fmt.Errorf("%w: subject_id is required", ErrInvalidRequest)
	case !req.Type.Known():
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidRequest, req.Type)
	case strings.TrimSpace(req.Provider) == "":
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidRequest)
	case len(req.Capabilities) == 0:
		return nil, fmt.Errorf("%w: at least one capability is required", ErrInvalidRequest)
	}

	caps := make([]capability.Name, 0, len(req.Capabilities))
	seen := make(map[capability.Name]struct{}, len(req.Capabilities))
	var unknown []capability.Name
	for _, raw := range req.Capabilities {
		c := capability.Name(raw)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if !c.Valid() {
			unknown = append(unknown, c)
			continue
		}
		caps = append(caps, c)
	}
	if len(unknown) > 0 {
		return nil, &ConfigurationError{Provider: req.Provider, Missing: unknown}
	}

	if len(s.registry.CapabilitiesFor(req.Provider)) == 0 {
		return nil, &ConfigurationError{Provider: req.Provider, Reason: "no usable capabilities are registered"}
	}
	if missing := s.registry.Missing(req.Provider, caps); len(missing) > 0 {
		return nil, &ConfigurationError{Provider: req.Provider, Missing: missing}
	}
	return caps, nil
}

// Cancel requests cancellation of the caller's task. Other callers' tasks
// are reported as not found.
func (s *Scheduler) Cancel(ctx context.Context, callerID, taskID string) (*Task, error) {
	t, err := s.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.CallerID != callerID {
		return nil, ErrNotFound
	}

	t, err = s.store.RequestCancel(taskID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task cancellation requested", "task_id", taskID, "state", t.State)
	if t.State.IsTerminal() {
		emit(ctx, s.emitter, s.logger, t)
	}
	return t, nil
}

// emit publishes t's observable state. Emission failures are logged only;
// the store remains authoritative.
func emit(ctx context.Context, emitter events.EventEmitter, logger *slog.Logger, t *Task) {
	if emitter == nil {
		return
	}
	event := events.NewProgressEvent(t.ID, string(t.State), t.Progress, t.CurrentStep, t.ErrorMessage, t.State.IsTerminal())
	if err := emitter.EmitEvent(ctx, event); err != nil {
		logger.DebugContext(ctx, "progress event handler failed", "task_id", t.ID, "error", err)
	}
}
