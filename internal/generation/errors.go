package generation

import "errors"

// Generator errors. The analysis stage classifies failures by these, so
// providers wrap the closest one.
var (
	// ErrGenerationFailed is the catch-all for a call that produced no text
	ErrGenerationFailed = errors.New("generation failed")

	// ErrInvalidResponse means the provider answered but the payload was unusable
	ErrInvalidResponse = errors.New("malformed model response")

	// ErrContentBlocked is reported when safety filters refuse the prompt or output
	ErrContentBlocked = errors.New("content blocked by model safety filters")

	// ErrTransientFailure marks rate limits, timeouts and 5xx responses
	ErrTransientFailure = errors.New("transient generation failure")

	ErrInvalidConfig = errors.New("invalid generator configuration")
	ErrEmptyPrompt   = errors.New("empty prompt")
)
