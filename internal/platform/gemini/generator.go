package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/generation"
	"google.golang.org/genai"
)

// callFunc performs one GenerateContent request.
type callFunc func(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error)

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger *slog.Logger
	call   callFunc
}

// Ensure Generator implements generation.Generator
var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Gemini client from cfg.
func NewGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(client.Models.GenerateContent, logger), nil
}

func newGenerator(call callFunc, logger *slog.Logger) *Generator {
	return &Generator{
		logger: logger.With("component", "gemini_generator"),
		call:   call,
	}
}

// Generate implements generation.Generator.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	if req.Prompt == "" {
		return "", generation.ErrEmptyPrompt
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	g.logger.DebugContext(ctx, "calling Gemini", "model", req.Model, "prompt_bytes", len(req.Prompt))

	resp, err := g.call(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		g.logger.WarnContext(ctx, "Gemini API call failed", "model", req.Model, "error", err)
		return "", classifyError(err)
	}

	return extractText(resp)
}

// extractText returns the concatenated text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response stopped by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: response contained no text", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// classifyError maps client failures onto the generation sentinels.
func classifyError(err error) error {
	if code, ok := apiErrorCode(err); ok {
		switch {
		case code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("%w: gemini returned %d: %v", generation.ErrTransientFailure, code, err)
		default:
			return fmt.Errorf("%w: gemini returned %d: %v", generation.ErrGenerationFailed, code, err)
		}
	}

	// Timeouts and network failures carry no status code
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
