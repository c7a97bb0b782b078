package task

import (
	"time"

	"github.com/google/uuid"
)

// State represents the current lifecycle state of a task
type State string

// Possible task states
const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// IsTerminal reports whether no further transitions can occur from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateInProgress, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Progress checkpoints reported while a task is in progress.
const (
	ProgressClaimed   = 0
	ProgressFetched   = 40
	ProgressAnalyzed  = 90
	ProgressCompleted = 100
)

// Analysis types and output formats accepted in Options.
const (
	AnalysisTypeFast = "fast"
	AnalysisTypeDeep = "deep"

	OutputFormatMarkdown = "markdown"
	OutputFormatJSON     = "json"

	DefaultPromptProfile = "default"
)

// Options are the caller-supplied analysis settings.
type Options struct {
	PromptProfile string   `json:"prompt_profile,omitempty"`
	Model         string   `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	AnalysisType  string   `json:"analysis_type,omitempty"`
	OutputFormat  string   `json:"output_format,omitempty"`
}

// Input is the immutable request a task was submitted with.
type Input struct {
	RepositoryLocators []string `json:"repository_locators"`
	Options            Options  `json:"options"`
}

// PrimaryURL returns the first repository locator, or "" when none is set.
func (in Input) PrimaryURL() string {
	if len(in.RepositoryLocators) == 0 {
		return ""
	}
	return in.RepositoryLocators[0]
}

// Task is one accepted analysis request and its tracked lifecycle.
type Task struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Input   Input

	State           State
	Progress        int
	AttemptCount    int
	CancelRequested bool

	SubmittedAt   time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	HeartbeatAt   *time.Time
	NextAttemptAt time.Time

	ErrorSummary    *string
	ResultReference *string
}

// NewTask creates a pending task for owner.
func NewTask(ownerID uuid.UUID, input Input, now time.Time) *Task {
	return &Task{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Input:         input,
		State:         StatePending,
		Progress:      ProgressClaimed,
		SubmittedAt:   now,
		NextAttemptAt: now,
	}
}

// Clone returns a deep copy of t so callers can hold snapshots without sharing pointers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Input.RepositoryLocators = append([]string(nil), t.Input.RepositoryLocators...)
	if t.Input.Options.Temperature != nil {
		temp := *t.Input.Options.Temperature
		c.Input.Options.Temperature = &temp
	}
	c.StartedAt = copyTime(t.StartedAt)
	c.CompletedAt = copyTime(t.CompletedAt)
	c.HeartbeatAt = copyTime(t.HeartbeatAt)
	c.ErrorSummary = copyString(t.ErrorSummary)
	c.ResultReference = copyString(t.ResultReference)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
