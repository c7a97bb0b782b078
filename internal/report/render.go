package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/task"
)

// Format is a report download format.
type Format string

// Supported download formats
const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "markdown", "md" and "json". An empty string yields fallback.
func ParseFormat(s string, fallback Format) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	if f == FormatJSON {
		return "json"
	}
	return "md"
}

// document is the JSON download layout.
type document struct {
	ID            string          `json:"id"`
	TaskID        string          `json:"task_id"`
	Repository    string          `json:"repository"`
	RepositoryURL string          `json:"repository_url"`
	Profile       string          `json:"profile"`
	Model         string          `json:"model"`
	OverallScore  float64         `json:"overall_score"`
	CreatedAt     string          `json:"created_at"`
	Analysis      json.RawMessage `json:"analysis"`
}

// Render returns r in format f.
func Render(r *domain.Report, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return []byte(r.Markdown), nil
	case FormatJSON:
		analysis := r.Analysis
		if len(analysis) == 0 {
			analysis = json.RawMessage("{}")
		}
		return json.MarshalIndent(document{
			ID:            r.ID.String(),
			TaskID:        r.TaskID.String(),
			Repository:    r.Repository,
			RepositoryURL: r.RepositoryURL,
			Profile:       r.Profile,
			Model:         r.Model,
			OverallScore:  r.Overall,
			CreatedAt:     r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Analysis:      analysis,
		}, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported report format %q", f)
	}
}

// renderMarkdown builds the markdown report for a completed analysis.
func renderMarkdown(t *task.Task, fetched *task.Fetched, a *task.Analysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Code Analysis: %s\n\n", fetched.Name)
	fmt.Fprintf(&b, "- Repository: %s\n", strings.Join(t.Input.RepositoryLocators, ", "))
	fmt.Fprintf(&b, "- Profile: %s\n", a.Profile)
	fmt.Fprintf(&b, "- Model: %s\n", a.Model)
	fmt.Fprintf(&b, "- Files analyzed: %d", fetched.FileCount)
	if fetched.Truncated {
		b.WriteString(" (truncated)")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "## Overall Score: %.2f / 100\n\n", a.Overall)

	if len(a.Scores) > 0 {
		b.WriteString("| Category | Score |\n|---|---:|\n")
		categories := make([]string, 0, len(a.Scores))
		for c := range a.Scores {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(&b, "| %s | %.0f |\n", titleCase(c), a.Scores[c])
		}
		b.WriteString("\n")
	}

	if a.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(a.Summary)
		b.WriteString("\n\n")
	}

	if len(a.Suggestions) > 0 {
		b.WriteString("## Suggestions\n\n")
		for _, s := range a.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
