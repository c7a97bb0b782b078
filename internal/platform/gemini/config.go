package gemini

import (
	"fmt"

	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/generation"
)

// validateConfig checks the settings the Gemini client cannot start without.
func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.DefaultModel == "" {
		return fmt.Errorf("%w: default model cannot be empty", generation.ErrInvalidConfig)
	}
	return nil
}
