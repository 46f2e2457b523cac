package events

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer is the per-subscription channel capacity.
const subscriberBuffer = 16

// subscription is one Subscribe call. Only deliver sends on ch.
type subscription struct {
	mu sync.Mutex
	ch chan *ProgressEvent
}

// deliver hands ev to the subscriber without blocking. Progress events are
// dropped when the buffer is full; a terminal event evicts the oldest
// buffered event instead, so the subscriber always learns the outcome.
func (s *subscription) deliver(ev *ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- ev:
			return true
		default:
		}
		if !ev.Terminal {
			return false
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// InMemoryEventEmitter dispatches events to registered handlers and to
// per-task subscribers.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	subs     map[string]map[*subscription]struct{}
	mu       sync.RWMutex
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make([]EventHandler, 0),
		subs:     make(map[string]map[*subscription]struct{}),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// Subscribe returns a channel receiving events for taskID and a function
// that ends the subscription and closes the channel.
func (e *InMemoryEventEmitter) Subscribe(taskID string) (<-chan *ProgressEvent, func()) {
	sub := &subscription{ch: make(chan *ProgressEvent, subscriberBuffer)}

	e.mu.Lock()
	set, ok := e.subs[taskID]
	if !ok {
		set = make(map[*subscription]struct{})
		e.subs[taskID] = set
	}
	set[sub] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if set, ok := e.subs[taskID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(e.subs, taskID)
				}
			}
			close(sub.ch)
		})
	}
}

// SubscriberCount returns the number of live subscriptions for taskID.
func (e *InMemoryEventEmitter) SubscriberCount(taskID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[taskID])
}

// EmitEvent publishes the given event to all registered handlers and to
// subscribers of the event's task. If any handler returns an error, the
// event is still sent to all other handlers and the first error is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *ProgressEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	for sub := range e.subs[event.TaskID] {
		if !sub.deliver(event) {
			e.logger.Debug("dropping event for slow subscriber",
				"event_id", event.ID,
				"task_id", event.TaskID)
		}
	}
	e.mu.RUnlock()

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
