package api

import (
	"time"

	"github.com/phrazzld/stockroom/internal/capability"
	"github.com/phrazzld/stockroom/internal/task"
)

// LoginRequest defines the payload for the operator login endpoint.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=1,max=72"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// Token is the JWT used for API authorization
	Token string `json:"token"`

	// ExpiresAt is the ISO 8601 timestamp when the token expires
	ExpiresAt string `json:"expires_at"`

	Role string `json:"role"`
}

// CreateTaskRequest defines the payload for quick task creation.
type CreateTaskRequest struct {
	SubjectID    string         `json:"subject_id"   validate:"required,max=128"`
	Provider     string         `json:"provider"     validate:"required,max=64"`
	Capabilities []string       `json:"capabilities" validate:"required,min=1,max=16,dive,required"`
	Params       map[string]any `json:"params,omitempty"`
}

// CreateTaskResponse is returned when a task is admitted.
type CreateTaskResponse struct {
	ID    string     `json:"id"`
	State task.State `json:"state"`
}

// TaskListResponse wraps a caller's tasks, newest first.
type TaskListResponse struct {
	Tasks []*task.Task `json:"tasks"`
}

// ProvidersResponse maps each provider to its usable capabilities.
type ProvidersResponse struct {
	Providers map[string][]capability.Name `json:"providers"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
