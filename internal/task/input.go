package task

import (
	"fmt"
	"slices"
	"strings"
)

// MaxRepositoryLocators bounds how many repositories one task may reference.
const MaxRepositoryLocators = 10

// ProfileCatalog reports which prompt profiles are available.
type ProfileCatalog interface {
	HasProfile(name string) bool
}

// InputPolicy holds the rules a submission is validated against.
type InputPolicy struct {
	// Profiles resolves prompt profile names; nil accepts only the default profile
	Profiles ProfileCatalog

	// AllowedModels restricts the model option; empty allows any model
	AllowedModels []string
}

// Normalize validates in and returns a copy with canonical locators and
// defaulted options. Every failure wraps ErrInvalidInput.
func (p InputPolicy) Normalize(in Input) (Input, error) {
	if len(in.RepositoryLocators) == 0 {
		return Input{}, fmt.Errorf("%w: at least one repository locator is required", ErrInvalidInput)
	}
	if len(in.RepositoryLocators) > MaxRepositoryLocators {
		return Input{}, fmt.Errorf("%w: at most %d repository locators are allowed", ErrInvalidInput, MaxRepositoryLocators)
	}

	out := Input{
		RepositoryLocators: make([]string, 0, len(in.RepositoryLocators)),
		Options:            in.Options,
	}

	seen := make(map[string]bool, len(in.RepositoryLocators))
	for _, raw := range in.RepositoryLocators {
		locator, err := NormalizeLocator(raw)
		if err != nil {
			return Input{}, err
		}
		if seen[locator] {
			continue
		}
		seen[locator] = true
		out.RepositoryLocators = append(out.RepositoryLocators, locator)
	}

	opts := &out.Options
	opts.PromptProfile = strings.TrimSpace(opts.PromptProfile)
	if opts.PromptProfile == "" {
		opts.PromptProfile = DefaultPromptProfile
	}
	if !p.hasProfile(opts.PromptProfile) {
		return Input{}, fmt.Errorf("%w: unknown prompt profile %q", ErrInvalidInput, opts.PromptProfile)
	}

	opts.Model = strings.TrimSpace(opts.Model)
	if opts.Model != "" && len(p.AllowedModels) > 0 && !slices.Contains(p.AllowedModels, opts.Model) {
		return Input{}, fmt.Errorf("%w: model %q is not supported", ErrInvalidInput, opts.Model)
	}

	if opts.Temperature != nil {
		if t := *opts.Temperature; t < 0 || t > 2 {
			return Input{}, fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidInput)
		}
		temp := *opts.Temperature
		opts.Temperature = &temp
	}

	switch opts.AnalysisType {
	case "":
		opts.AnalysisType = AnalysisTypeDeep
	case AnalysisTypeFast, AnalysisTypeDeep:
	default:
		return Input{}, fmt.Errorf("%w: analysis_type must be %q or %q", ErrInvalidInput, AnalysisTypeFast, AnalysisTypeDeep)
	}

	switch opts.OutputFormat {
	case "":
		opts.OutputFormat = OutputFormatMarkdown
	case OutputFormatMarkdown, OutputFormatJSON:
	default:
		return Input{}, fmt.Errorf("%w: output_format must be %q or %q", ErrInvalidInput, OutputFormatMarkdown, OutputFormatJSON)
	}

	return out, nil
}

func (p InputPolicy) hasProfile(name string) bool {
	if p.Profiles == nil {
		return name == DefaultPromptProfile
	}
	return p.Profiles.HasProfile(name)
}
