package provider

import (
	"context"
	"errors"
	"net"
)

// Permanent failures. The worker pool fails the task immediately.
var (
	ErrNotFound         = errors.New("subject not found at provider")
	ErrUnauthorized     = errors.New("provider rejected credentials")
	ErrMalformedSubject = errors.New("malformed subject identifier")
	ErrUnsupported      = errors.New("capability not supported by provider")
)

// ErrTransient marks a failure worth retrying (rate limited upstream, 5xx,
// connection reset).
var ErrTransient = errors.New("transient provider failure")

// IsRetryable classifies err. Unknown errors are permanent so an adapter
// bug cannot turn into an unbounded retry storm.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrMalformedSubject),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry, either a context
// deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Kind returns a short, stable label for err suitable for a task record.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMalformedSubject):
		return "malformed_subject"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case IsTimeout(err):
		return "timeout"
	case IsRetryable(err):
		return "transient"
	default:
		return "provider"
	}
}
