package domain

import "errors"

var (
	// ErrValidation marks caller-supplied data that failed a rule. The text
	// after "validation failed: " is safe to show the client.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized marks a request without a usable identity.
	ErrUnauthorized = errors.New("unauthorized operation")
)
