package analysis

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/generation"
	"github.com/phrazzld/codescope-api/internal/task"
)

// charsPerToken approximates how much digest text fits one model token.
const charsPerToken = 4

// truncationNotice is appended to digests cut to the token budget.
const truncationNotice = "\n\n[digest truncated to fit the model context]\n"

// Config holds the model routing settings.
type Config struct {
	// DefaultModel serves deep analyses
	DefaultModel string

	// FastModel serves fast analyses
	FastModel string

	// Temperature applies when neither the request nor the profile sets one
	Temperature float64

	// MaxTokens bounds the digest length at charsPerToken characters per token
	MaxTokens int
}

// ConfigFrom extracts the routing settings from the LLM configuration.
func ConfigFrom(cfg config.LLMConfig) Config {
	return Config{
		DefaultModel: cfg.DefaultModel,
		FastModel:    cfg.FastModel,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
}

// Analyzer implements task.Analyzer over a generation.Generator.
type Analyzer struct {
	generator generation.Generator
	catalog   *Catalog
	config    Config
	logger    *slog.Logger
}

// Ensure Analyzer implements task.Analyzer
var _ task.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer. A missing fast model falls back to the
// default model.
func NewAnalyzer(generator generation.Generator, catalog *Catalog, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.FastModel == "" {
		cfg.FastModel = cfg.DefaultModel
	}
	return &Analyzer{
		generator: generator,
		catalog:   catalog,
		config:    cfg,
		logger:    logger.With("component", "analyzer"),
	}
}

// Analyze implements task.Analyzer.
func (a *Analyzer) Analyze(ctx context.Context, fetched *task.Fetched, opts task.Options) (*task.Analysis, error) {
	if fetched == nil || fetched.Digest == "" {
		return nil, task.NewAnalysisError("repository has no analyzable content", true, nil)
	}

	name := opts.PromptProfile
	if name == "" {
		name = task.DefaultPromptProfile
	}
	profile, ok := a.catalog.Profile(name)
	if !ok {
		// The profile was removed by a reload after the task was accepted
		return nil, task.NewAnalysisError("unknown prompt profile "+name, true, nil)
	}

	digest, truncated := truncateDigest(fetched.Digest, a.config.MaxTokens*charsPerToken)
	prompt, err := profile.render(promptData{
		Name:         fetched.Name,
		URL:          fetched.URL,
		Digest:       digest,
		FileCount:    fetched.FileCount,
		Truncated:    truncated || fetched.Truncated,
		AnalysisType: opts.AnalysisType,
	})
	if err != nil {
		return nil, task.NewAnalysisError("prompt rendering failed", true, err)
	}

	req := generation.Request{
		Model:       a.model(opts),
		Prompt:      prompt,
		Temperature: a.temperature(opts, profile),
		JSON:        true,
	}

	logger := a.logger.With("profile", profile.Name, "model", req.Model)
	logger.DebugContext(ctx, "requesting analysis",
		"prompt_bytes", len(prompt),
		"digest_truncated", truncated)

	reply, err := a.generator.Generate(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}

	result, err := parseReply(reply, profile)
	if err != nil {
		logger.WarnContext(ctx, "model reply could not be parsed", "error", err, "reply_bytes", len(reply))
		return nil, task.NewAnalysisError("invalid model output", false, err)
	}
	result.Model = req.Model

	logger.InfoContext(ctx, "analysis completed", "overall", result.Overall, "scores", len(result.Scores))
	return result, nil
}

// model routes a request: an explicit model wins, then the analysis type.
func (a *Analyzer) model(opts task.Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	if opts.AnalysisType == task.AnalysisTypeFast {
		return a.config.FastModel
	}
	return a.config.DefaultModel
}

func (a *Analyzer) temperature(opts task.Options, profile *Profile) float64 {
	switch {
	case opts.Temperature != nil:
		return *opts.Temperature
	case profile.Temperature != nil:
		return *profile.Temperature
	default:
		return a.config.Temperature
	}
}

// classify maps generation failures onto analysis stage errors.
func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, generation.ErrContentBlocked):
		return task.NewAnalysisError("content blocked by model safety filters", true, err)
	case errors.Is(err, generation.ErrTransientFailure):
		return task.NewAnalysisError("model service unavailable", false, err)
	case errors.Is(err, generation.ErrInvalidResponse):
		return task.NewAnalysisError("invalid model output", false, err)
	case errors.Is(err, generation.ErrInvalidConfig), errors.Is(err, generation.ErrGenerationFailed):
		return task.NewAnalysisError("model request rejected", true, err)
	default:
		return task.NewAnalysisError("model request failed", false, err)
	}
}

// truncateDigest cuts digest to at most limit bytes on a rune boundary.
// A non-positive limit disables truncation.
func truncateDigest(digest string, limit int) (string, bool) {
	if limit <= 0 || len(digest) <= limit {
		return digest, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(digest[cut]) {
		cut--
	}
	return digest[:cut] + truncationNotice, true
}
