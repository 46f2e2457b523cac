// Package events carries task progress notifications inside the process.
//
// The task engine emits a ProgressEvent for every state or progress change.
// Registered EventHandlers see every event; subscribers interested in a
// single task (the WebSocket push channel) receive that task's events on a
// buffered channel. Delivery to subscribers is best effort: a slow
// subscriber misses events rather than stalling the worker pool, and the
// polled task record remains the source of truth.
package events
