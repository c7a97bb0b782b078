package task

import (
	"context"
	"encoding/json"
)

// Fetched is the repository content produced by the fetch stage.
type Fetched struct {
	// Name is the display name, e.g. "owner/repo"
	Name string

	// URL is the primary repository locator
	URL string

	// Digest is the concatenated, filtered source text handed to the model
	Digest string

	FileCount int
	Truncated bool
}

// Analysis is the structured result of the analysis stage.
type Analysis struct {
	Profile     string             `json:"profile"`
	Model       string             `json:"model"`
	Summary     string             `json:"summary"`
	Scores      map[string]float64 `json:"scores"`
	Overall     float64            `json:"overall"`
	Suggestions []string           `json:"suggestions,omitempty"`

	// Raw is the full JSON document returned by the model
	Raw json.RawMessage `json:"raw"`
}

// Fetcher retrieves repository content. Failures are reported as StageError
// values of kind ErrFetch.
type Fetcher interface {
	Fetch(ctx context.Context, locators []string) (*Fetched, error)
}

// Analyzer runs the language model over fetched content. Failures are reported
// as StageError values of kind ErrAnalysis.
type Analyzer interface {
	Analyze(ctx context.Context, fetched *Fetched, opts Options) (*Analysis, error)
}

// Reporter persists analysis results and hands back an opaque reference.
type Reporter interface {
	// Save stores the report for t and returns its reference
	Save(ctx context.Context, t *Task, fetched *Fetched, analysis *Analysis) (string, error)

	// Discard removes a report that was saved for an attempt that did not complete
	Discard(ctx context.Context, ref string) error
}
