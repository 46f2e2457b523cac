// Package redis provides Redis-backed infrastructure: a sliding-window
// counter store for the rate limiter, shared by every server instance
// pointed at the same Redis.
package redis
