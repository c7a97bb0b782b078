package generation

import "context"

// Request is a single completion request.
type Request struct {
	// Model is the provider model name
	Model string

	// Prompt is the full prompt text
	Prompt string

	// Temperature is the sampling temperature, 0 to 2
	Temperature float64

	// JSON asks the provider to constrain output to a JSON document
	JSON bool
}

// Generator produces a completion for a prompt.
//
// Implementations wrap failures with the sentinels in this package:
// ErrTransientFailure for rate limits, timeouts and server errors,
// ErrContentBlocked for safety refusals, ErrInvalidResponse for empty or
// malformed replies and ErrGenerationFailed for everything else.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ModelInfo describes a model a provider can serve.
type ModelInfo struct {
	Name              string `json:"name"`
	Size              int64  `json:"size,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
	Family            string `json:"family,omitempty"`
}

// ModelLister is implemented by generators that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
