package auth

import "errors"

// Common authentication errors.
var (
	// ErrInvalidToken indicates that the provided token is malformed, has an
	// invalid signature, or is otherwise not valid.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates that the provided token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates that the provided token is not yet valid.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrInvalidCredentials is returned for any failed username/password check.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
