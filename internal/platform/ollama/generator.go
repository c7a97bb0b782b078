package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/generation"
)

// Generator implements generation.Generator over the Ollama HTTP API.
type Generator struct {
	client *api.Client
	logger *slog.Logger
}

// Ensure Generator implements generation.Generator and generation.ModelLister
var (
	_ generation.Generator   = (*Generator)(nil)
	_ generation.ModelLister = (*Generator)(nil)
)

// NewGenerator creates a generator for the server at cfg.OllamaHost. An empty
// host falls back to OLLAMA_HOST and the client's default address.
func NewGenerator(cfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var client *api.Client
	if cfg.OllamaHost == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
		}
		client = c
	} else {
		base, err := url.Parse(cfg.OllamaHost)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("%w: invalid ollama host %q", generation.ErrInvalidConfig, cfg.OllamaHost)
		}
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		client = api.NewClient(base, httpClient)
	}

	return &Generator{
		client: client,
		logger: logger.With("component", "ollama_generator"),
	}, nil
}

// Generate implements generation.Generator.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	if req.Prompt == "" {
		return "", generation.ErrEmptyPrompt
	}

	stream := false
	request := &api.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.JSON {
		request.Format = json.RawMessage(`"json"`)
	}

	g.logger.DebugContext(ctx, "calling Ollama", "model", req.Model, "prompt_bytes", len(req.Prompt))

	var b strings.Builder
	err := g.client.Generate(ctx, request, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		g.logger.WarnContext(ctx, "Ollama call failed", "model", req.Model, "error", err)
		return "", classifyError(err)
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: response contained no text", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// ListModels implements generation.ModelLister.
func (g *Generator) ListModels(ctx context.Context) ([]generation.ModelInfo, error) {
	resp, err := g.client.List(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	models := make([]generation.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, generation.ModelInfo{
			Name:              m.Name,
			Size:              m.Size,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
			Family:            m.Details.Family,
		})
	}
	return models, nil
}

// classifyError maps client failures onto the generation sentinels. The
// server reports most failures as a bare error message, so missing models
// are recognized by text.
func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500 {
			return fmt.Errorf("%w: ollama returned %d: %v", generation.ErrTransientFailure, statusErr.StatusCode, err)
		}
		return fmt.Errorf("%w: ollama returned %d: %v", generation.ErrGenerationFailed, statusErr.StatusCode, err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "invalid") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
