package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Tier is one independent limit, e.g. 30 hits per minute.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Validate reports configuration mistakes in t.
func (t Tier) Validate() error {
	switch {
	case t.Name == "":
		return errors.New("tier name is required")
	case t.Limit <= 0:
		return fmt.Errorf("tier %s: limit must be positive", t.Name)
	case t.Window <= 0:
		return fmt.Errorf("tier %s: window must be positive", t.Name)
	}
	return nil
}

// ErrExceeded matches any *ExceededError via errors.Is.
var ErrExceeded = errors.New("rate limit exceeded")

// ErrStoreUnavailable wraps counter store failures. The limiter fails
// closed: a guest request that cannot be counted is refused.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// ExceededError names the first tier a request breached.
type ExceededError struct {
	Tier       string
	Limit      int
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s (tier %s)", e.Limit, e.RetryAfter, e.Tier)
}

// Is lets errors.Is(err, ErrExceeded) match.
func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// RetryAfterSeconds is the Retry-After header value, rounded up.
func (e *ExceededError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
