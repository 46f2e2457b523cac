// Package ws pushes live task progress to WebSocket clients. It mirrors the
// polling API: a client first receives the task's current snapshot, then
// every later progress event, and the connection closes after the terminal
// event.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/phrazzld/stockroom/internal/events"
	"github.com/phrazzld/stockroom/internal/task"
)

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 5 * time.Second

// TaskReader returns a task's current state.
type TaskReader interface {
	Get(id string) (*task.Task, error)
}

// Subscriber delivers progress events for a single task.
type Subscriber interface {
	Subscribe(taskID string) (<-chan *events.ProgressEvent, func())
}

type conn struct {
	ws     *websocket.Conn
	taskID string
}

// Hub tracks open progress streams.
type Hub struct {
	tasks  TaskReader
	bus    Subscriber
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewHub creates a Hub.
func NewHub(tasks TaskReader, bus Subscriber, logger *slog.Logger) *Hub {
	return &Hub{
		tasks:  tasks,
		bus:    bus,
		logger: logger.With("component", "ws_hub"),
		conns:  make(map[*conn]struct{}),
	}
}

// HandleTaskProgress upgrades the request and streams progress for the
// task named by the task_id query parameter.
func (h *Hub) HandleTaskProgress(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		http.Error(w, "task_id is required", http.StatusBadRequest)
		return
	}

	// Subscribe before reading the snapshot so no event falls in between.
	updates, unsubscribe := h.bus.Subscribe(taskID)
	defer unsubscribe()

	snapshot, err := h.tasks.Get(taskID)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load task snapshot", "task_id", taskID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	c := &conn{ws: ws, taskID: taskID}
	h.add(c)
	defer h.remove(c)

	h.logger.Debug("websocket connected", "task_id", taskID, "remote", r.RemoteAddr)

	// Client frames are ignored; the returned context ends on disconnect.
	ctx := ws.CloseRead(r.Context())

	first := events.NewProgressEvent(snapshot.ID, string(snapshot.State), snapshot.Progress,
		snapshot.CurrentStep, snapshot.ErrorMessage, snapshot.State.IsTerminal())
	if !h.send(ctx, c, first) || first.Terminal {
		h.close(c, websocket.StatusNormalClosure, "task finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				h.close(c, websocket.StatusGoingAway, "server shutting down")
				return
			}
			if ev.Progress < first.Progress && !ev.Terminal {
				// Stale event emitted before the snapshot was taken.
				continue
			}
			if !h.send(ctx, c, ev) {
				return
			}
			if ev.Terminal {
				h.close(c, websocket.StatusNormalClosure, "task finished")
				return
			}
		}
	}
}

func (h *Hub) send(ctx context.Context, c *conn, ev *events.ProgressEvent) bool {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, c.ws, ev); err != nil {
		h.logger.Debug("websocket write failed", "task_id", c.taskID, "error", err)
		_ = c.ws.CloseNow()
		return false
	}
	return true
}

func (h *Hub) close(c *conn, code websocket.StatusCode, reason string) {
	if err := c.ws.Close(code, reason); err != nil {
		h.logger.Debug("websocket close failed", "task_id", c.taskID, "error", err)
	}
}

// ConnectionCount returns the number of open streams.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close ends every open stream.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.close(c, websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
