// Package ratelimit applies a sliding-window request budget to guest callers.
//
// Every request is attributed to an Identity. Guests (unauthenticated
// callers and holders of guest tokens) are keyed by source address and
// counted against each configured Tier independently. Authenticated users
// and API-key holders are exempt and never touch a counter.
//
// Counting is delegated to a CounterStore. MemoryStore keeps a per-key
// sliding log in process; the Redis implementation in platform/redis keeps
// the same log in sorted sets so several server processes share budgets.
package ratelimit
