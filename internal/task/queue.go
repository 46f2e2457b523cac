package task

import (
	"fmt"
	"log/slog"
	"sync"
)

// Queue is a bounded FIFO of admitted task IDs. It implements Dispatcher
// for the scheduler and feeds the worker pool.
type Queue struct {
	mu     sync.RWMutex
	ids    chan string
	closed bool
	logger *slog.Logger
}

var _ Dispatcher = (*Queue)(nil)

// NewQueue creates a queue holding at most size IDs.
func NewQueue(size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		ids:    make(chan string, size),
		logger: logger.With("component", "task_queue"),
	}
}

// Dispatch enqueues taskID without blocking.
func (q *Queue) Dispatch(taskID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("%w: queue is shut down", ErrQueueFull)
	}

	select {
	case q.ids <- taskID:
		q.logger.Debug("task enqueued",
			"task_id", taskID,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close stops further dispatches. Queued IDs remain readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Info("task queue closed")
	}
}

// Channel returns the receive side consumed by workers.
func (q *Queue) Channel() <-chan string {
	return q.ids
}

// Len returns the number of queued IDs.
func (q *Queue) Len() int {
	return len(q.ids)
}
