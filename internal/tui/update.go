package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setStatus("Failed to load tasks: " + msg.err.Error())
			return m, nil
		}
		m.tasks = msg.tasks
		m.total = msg.total
		m.clampCursor()
		return m, nil

	case taskLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setStatus("Failed to load task: " + msg.err.Error())
			return m, nil
		}
		m.selected = msg.task
		return m, nil

	case cancelDoneMsg:
		if msg.err != nil {
			m.setStatus("Cancel failed: " + msg.err.Error())
			return m, nil
		}
		if msg.task.State.IsTerminal() {
			m.setStatus("Task " + string(msg.task.State) + ".")
		} else {
			m.setStatus("Cancellation requested.")
		}
		if m.screen == screenDetail {
			m.selected = msg.task
		}
		return m, m.refresh()

	case tickMsg:
		cmds := []tea.Cmd{tickCmd(m.interval)}
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.refresh())
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc", "backspace":
		return m.goBack()

	case "r":
		m.refreshing = true
		return m, m.refresh()
	}

	switch m.screen {
	case screenList:
		return m.handleListKey(msg)
	case screenDetail:
		return m.handleDetailKey(msg)
	}
	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	if m.screen != screenDetail {
		return m, nil
	}
	if m.followOnly {
		m.quitting = true
		return m, tea.Quit
	}
	m.screen = screenList
	m.selected = nil
	return m, m.loadTasks()
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "enter":
		if t := m.current(); t != nil {
			m.screen = screenDetail
			m.selected = t
			return m, m.loadTask(t.ID)
		}
	case "c":
		if t := m.current(); t != nil && !t.State.IsTerminal() {
			return m, m.cancelTask(t.ID)
		}
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "c" && m.selected != nil && !m.selected.State.IsTerminal() {
		return m, m.cancelTask(m.selected.ID)
	}
	return m, nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
