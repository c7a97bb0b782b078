package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Score categories a profile may ask the model to rate.
const (
	CategoryReadability = "readability"
	CategoryStandards   = "standards"
	CategoryComplexity  = "complexity"
	CategoryTesting     = "testing"
	CategorySecurity    = "security"
)

// knownCategories lists every category in report order.
var knownCategories = []string{
	CategoryReadability,
	CategoryStandards,
	CategoryComplexity,
	CategoryTesting,
	CategorySecurity,
}

//go:embed profiles.yaml
var builtinProfiles []byte

// Profile is a named prompt template and the scores it produces.
type Profile struct {
	Name        string
	Description string

	// Categories are the scores the profile asks for
	Categories []string

	// Weights, when set, weight the overall score; unlisted categories do not count
	Weights map[string]float64

	// Temperature overrides the configured default when set
	Temperature *float64

	template *template.Template
}

// profileFile is the YAML layout of profiles.yaml and llm.prompts_file.
type profileFile struct {
	Profiles map[string]profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	Description string             `yaml:"description"`
	Categories  []string           `yaml:"categories"`
	Weights     map[string]float64 `yaml:"weights"`
	Temperature *float64           `yaml:"temperature"`
	Template    string             `yaml:"template"`
}

// parseProfiles decodes and compiles a profile document.
func parseProfiles(data []byte) (map[string]*Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	profiles := make(map[string]*Profile, len(file.Profiles))
	for name, spec := range file.Profiles {
		profile, err := compileProfile(name, spec)
		if err != nil {
			return nil, err
		}
		profiles[name] = profile
	}
	return profiles, nil
}

func compileProfile(name string, spec profileSpec) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("profile name cannot be empty")
	}
	if strings.TrimSpace(spec.Template) == "" {
		return nil, fmt.Errorf("profile %q: template cannot be empty", name)
	}

	categories := spec.Categories
	if len(categories) == 0 {
		categories = knownCategories
	}
	for _, c := range categories {
		if !slices.Contains(knownCategories, c) {
			return nil, fmt.Errorf("profile %q: unknown category %q", name, c)
		}
	}
	for c, w := range spec.Weights {
		if !slices.Contains(categories, c) {
			return nil, fmt.Errorf("profile %q: weight for unscored category %q", name, c)
		}
		if w < 0 {
			return nil, fmt.Errorf("profile %q: weight for %q cannot be negative", name, c)
		}
	}
	if t := spec.Temperature; t != nil && (*t < 0 || *t > 2) {
		return nil, fmt.Errorf("profile %q: temperature must be between 0 and 2", name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(spec.Template)
	if err != nil {
		return nil, fmt.Errorf("profile %q: invalid template: %w", name, err)
	}

	return &Profile{
		Name:        name,
		Description: strings.TrimSpace(spec.Description),
		Categories:  slices.Clone(categories),
		Weights:     spec.Weights,
		Temperature: spec.Temperature,
		template:    tmpl,
	}, nil
}

// loadProfiles returns the built-in profiles overlaid with those in path.
func loadProfiles(path string) (map[string]*Profile, error) {
	profiles, err := parseProfiles(builtinProfiles)
	if err != nil {
		return nil, fmt.Errorf("built-in profiles: %w", err)
	}
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	overrides, err := parseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	for name, p := range overrides {
		profiles[name] = p
	}
	return profiles, nil
}

// promptData is the value profile templates are executed against.
type promptData struct {
	Name         string
	URL          string
	Digest       string
	FileCount    int
	Truncated    bool
	AnalysisType string
}

// render executes the profile template.
func (p *Profile) render(data promptData) (string, error) {
	var b strings.Builder
	if err := p.template.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render profile %q: %w", p.Name, err)
	}
	return b.String(), nil
}
