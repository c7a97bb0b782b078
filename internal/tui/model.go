package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/task"
)

// screen represents which view the TUI is showing.
type screen int

const (
	screenList   screen = iota // Task list (main)
	screenDetail               // Single task detail
)

// listLimit caps how many tasks the list view loads.
const listLimit = 50

// Source is where the dashboard reads tasks from. task.Coordinator satisfies it.
type Source interface {
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*task.Task, int, error)
	Get(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
	Cancel(ctx context.Context, ownerID, taskID uuid.UUID) (*task.Task, error)
}

// Model is the top-level bubbletea model.
type Model struct {
	source   Source
	owner    uuid.UUID
	interval time.Duration
	width    int
	height   int

	screen screen

	// List state.
	tasks  []*task.Task
	total  int
	cursor int

	// Task shown in the detail view.
	selected *task.Task

	// followOnly keeps the model on one task; leaving the detail view quits.
	followOnly bool

	bar progress.Model

	statusMsg  string
	statusTime time.Time
	refreshing bool
	quitting   bool
}

// New creates a dashboard over the owner's tasks, refreshed every interval.
func New(source Source, owner uuid.UUID, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(24))
	return Model{
		source:   source,
		owner:    owner,
		interval: interval,
		screen:   screenList,
		bar:      bar,
	}
}

// Follow returns a model that watches a single task.
func Follow(source Source, owner, taskID uuid.UUID, interval time.Duration) Model {
	m := New(source, owner, interval)
	m.screen = screenDetail
	m.followOnly = true
	m.selected = &task.Task{ID: taskID}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tickCmd(m.interval))
}

type tasksLoadedMsg struct {
	tasks []*task.Task
	total int
	err   error
}

type taskLoadedMsg struct {
	task *task.Task
	err  error
}

type cancelDoneMsg struct {
	task *task.Task
	err  error
}

type tickMsg time.Time

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	if m.screen == screenDetail && m.selected != nil {
		return m.loadTask(m.selected.ID)
	}
	return m.loadTasks()
}

func (m Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, total, err := m.source.List(context.Background(), m.owner, listLimit)
		return tasksLoadedMsg{tasks: tasks, total: total, err: err}
	}
}

func (m Model) loadTask(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		t, err := m.source.Get(context.Background(), m.owner, id)
		return taskLoadedMsg{task: t, err: err}
	}
}

func (m Model) cancelTask(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		t, err := m.source.Cancel(context.Background(), m.owner, id)
		return cancelDoneMsg{task: t, err: err}
	}
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}

// current returns the task under the cursor, if any.
func (m Model) current() *task.Task {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return nil
	}
	return m.tasks[m.cursor]
}
