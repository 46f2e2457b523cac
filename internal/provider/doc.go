// Package provider defines the contract between the enrichment worker pool
// and external part-distributor services.
//
// A provider is a name plus a capability-indexed function table. Adding a
// provider means building a Table and registering it; the scheduler and
// worker pool never change. Failures returned by an Invoker are classified
// with IsRetryable so the worker pool can decide between backoff and
// immediate failure.
package provider
