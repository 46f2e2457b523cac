package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/platform/logger"
	"github.com/phrazzld/stockroom/internal/task"
)

// TaskAdmitter admits and cancels tasks.
type TaskAdmitter interface {
	Admit(ctx context.Context, req task.Request) (*task.Task, error)
	Cancel(ctx context.Context, callerID, taskID string) (*task.Task, error)
}

// TaskReader reads task records on behalf of a caller.
type TaskReader interface {
	GetForCaller(callerID, id string) (*task.Task, error)
	List(callerID string) []*task.Task
}

// CapabilitySource reports the current provider capability table.
type CapabilitySource interface {
	Snapshot() map[string][]capability.Name
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	scheduler TaskAdmitter
	tasks     TaskReader
	registry  CapabilitySource
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(scheduler TaskAdmitter, tasks TaskReader, registry CapabilitySource) *TaskHandler {
	return &TaskHandler{
		scheduler: scheduler,
		tasks:     tasks,
		registry:  registry,
		validator: validator.New(),
	}
}

// CreateQuickTask handles POST /tasks/quick/{task_type}.
func (h *TaskHandler) CreateQuickTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context())

	callerID, ok := callerFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	t, err := h.scheduler.Admit(r.Context(), task.Request{
		CallerID:     callerID,
		SubjectID:    req.SubjectID,
		Type:         task.Type(chi.URLParam(r, "task_type")),
		Provider:     req.Provider,
		Capabilities: req.Capabilities,
		Params:       req.Params,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Info("task admitted",
		"task_id", t.ID,
		"task_type", t.Type,
		"subject_id", t.SubjectID,
		"provider", t.Provider)
	shared.RespondWithJSON(w, r, http.StatusCreated, CreateTaskResponse{ID: t.ID, State: t.State})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	callerID, id, ok := handleCallerAndPathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.tasks.GetForCaller(callerID, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// ListTasks handles GET /tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	tasks := h.tasks.List(callerID)
	if tasks == nil {
		tasks = []*task.Task{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

// CancelTask handles POST /tasks/{id}/cancel. The response carries the
// record as it stands; a running task finishes cancelling at its next
// checkpoint.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	callerID, id, ok := handleCallerAndPathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.scheduler.Cancel(r.Context(), callerID, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, t)
}

// ListProviders handles GET /tasks/capabilities/providers.
func (h *TaskHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, ProvidersResponse{Providers: h.registry.Snapshot()})
}
