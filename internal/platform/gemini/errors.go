package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the client cannot be constructed.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrContentBlocked is returned when the model refuses to answer.
	ErrContentBlocked = errors.New("content blocked by safety filters")
)
