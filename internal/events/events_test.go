package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewProgressEvent(t *testing.T) {
	event := NewProgressEvent("task-1", "running", 50, "fetch-image", "", false)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeTaskProgress, event.Type)
	assert.Equal(t, "task-1", event.TaskID)
	assert.Equal(t, "running", event.State)
	assert.Equal(t, 50, event.Progress)
	assert.Equal(t, "fetch-image", event.CurrentStep)
	assert.False(t, event.Terminal)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
}
