// tools.go defines the argument and output types of every tool. Identifiers
// and timestamps are strings so the inferred schemas match the wire format.
package mcpserver

import (
	"time"

	"github.com/phrazzld/codescope-api/internal/generation"
	"github.com/phrazzld/codescope-api/internal/task"
)

// SubmitAnalysisArgs is the input for the submit_analysis tool.
type SubmitAnalysisArgs struct {
	RepositoryLocators []string `json:"repository_locators"      jsonschema:"Repositories to analyze: owner/repo shorthand or https, git or ssh URLs"`
	PromptProfile      string   `json:"prompt_profile,omitempty" jsonschema:"Prompt profile name, see list_profiles. Defaults to default"`
	Model              string   `json:"model,omitempty"          jsonschema:"Model override. Empty routes by analysis_type"`
	Temperature        *float64 `json:"temperature,omitempty"    jsonschema:"Sampling temperature between 0 and 2"`
	AnalysisType       string   `json:"analysis_type,omitempty"  jsonschema:"fast or deep. Defaults to deep"`
	OutputFormat       string   `json:"output_format,omitempty"  jsonschema:"markdown or json. Defaults to markdown"`
}

// SubmitAnalysisOutput acknowledges an accepted task.
type SubmitAnalysisOutput struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// TaskIDArgs is the input for tools addressing a single task.
type TaskIDArgs struct {
	TaskID string `json:"task_id" jsonschema:"Task ID returned by submit_analysis"`
}

// TaskStatus is the status snapshot of one task.
type TaskStatus struct {
	TaskID          string `json:"task_id"`
	State           string `json:"state"`
	Progress        int    `json:"progress"`
	GitHubURL       string `json:"github_url"`
	AttemptCount    int    `json:"attempt_count"`
	SubmittedAt     string `json:"submitted_at"`
	StartedAt       string `json:"started_at,omitempty"`
	CompletedAt     string `json:"completed_at,omitempty"`
	ErrorSummary    string `json:"error_summary,omitempty"`
	ResultReference string `json:"result_reference,omitempty"`
	CancelRequested bool   `json:"cancel_requested,omitempty"`
}

// ListTasksArgs is the input for the list_tasks tool.
type ListTasksArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum tasks to return, newest first. Defaults to 20, at most 100"`
}

// ListTasksOutput holds a page of tasks and the owner's total task count.
type ListTasksOutput struct {
	Tasks []TaskStatus `json:"tasks"`
	Total int          `json:"total"`
}

// GetReportArgs is the input for the get_report tool.
type GetReportArgs struct {
	ReportID string `json:"report_id"        jsonschema:"Report ID, the result_reference of a completed task"`
	Format   string `json:"format,omitempty" jsonschema:"markdown or json. Defaults to the format requested with the task"`
}

// GetReportOutput carries a rendered report.
type GetReportOutput struct {
	ReportID     string  `json:"report_id"`
	Repository   string  `json:"repository"`
	Format       string  `json:"format"`
	OverallScore float64 `json:"overall_score"`
	Content      string  `json:"content"`
}

// ListProfilesArgs is the input for the list_profiles tool. No arguments needed.
type ListProfilesArgs struct{}

// ListProfilesOutput names the prompt profiles that submit_analysis accepts.
type ListProfilesOutput struct {
	Profiles []string `json:"profiles"`
}

// ListModelsArgs is the input for the list_models tool. No arguments needed.
type ListModelsArgs struct{}

// ListModelsOutput lists the models the configured provider serves.
type ListModelsOutput struct {
	Models []generation.ModelInfo `json:"models"`
}

func toStatus(t *task.Task) TaskStatus {
	s := TaskStatus{
		TaskID:          t.ID.String(),
		State:           string(t.State),
		Progress:        t.Progress,
		GitHubURL:       t.Input.PrimaryURL(),
		AttemptCount:    t.AttemptCount,
		SubmittedAt:     t.SubmittedAt.Format(time.RFC3339),
		StartedAt:       formatTime(t.StartedAt),
		CompletedAt:     formatTime(t.CompletedAt),
		CancelRequested: t.CancelRequested && !t.State.IsTerminal(),
	}
	if t.ErrorSummary != nil {
		s.ErrorSummary = *t.ErrorSummary
	}
	if t.ResultReference != nil {
		s.ResultReference = *t.ResultReference
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
