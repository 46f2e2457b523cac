// Package task manages asynchronous enrichment tasks: admission, queuing,
// execution, and lifecycle.
//
// A Scheduler admits requests after validating the chosen provider against
// the capability registry and enforcing per-(caller, subject, type)
// exclusivity. Admitted tasks are dispatched to a WorkerPool, which claims
// each one with an atomic pending->running transition, invokes the provider
// for every requested capability with per-attempt timeouts and bounded
// exponential backoff, and records progress until a terminal state is
// written. Query is the read path used by polling clients, and Sweeper
// bounds memory by dropping terminal tasks after a retention period.
package task
