package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/phrazzld/codescope-api/internal/task"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle    = lipgloss.NewStyle().Foreground(clrDim)
	subtleStyle = lipgloss.NewStyle().Foreground(clrSubtle)
	labelStyle  = lipgloss.NewStyle().Foreground(clrSubtle).Width(12)

	selectedRowStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(1, 2)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

var stateColors = map[task.State]lipgloss.AdaptiveColor{
	task.StatePending:    clrYellow,
	task.StateInProgress: clrBlue,
	task.StateCompleted:  clrGreen,
	task.StateFailed:     clrRed,
	task.StateCancelled:  clrDim,
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.screen {
	case screenDetail:
		content = m.viewDetail()
	default:
		content = m.viewList()
	}

	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n")
	if m.statusMsg != "" {
		style := statusStyle
		if strings.Contains(strings.ToLower(m.statusMsg), "fail") {
			style = errorStyle
		}
		b.WriteString("  " + style.Render(m.statusMsg) + "\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) viewList() string {
	header := titleStyle.Render("CODESCOPE TASKS") + "  " +
		dimStyle.Render(fmt.Sprintf("%d of %d", len(m.tasks), m.total))

	if len(m.tasks) == 0 {
		return header + "\n\n" + subtleStyle.Render("  No tasks yet.") + "\n"
	}
	return header + "\n\n" + renderTable(m.tasks, m.cursor, m.bar) + "\n"
}

func (m Model) viewDetail() string {
	t := m.selected
	if t == nil || t.SubmittedAt.IsZero() {
		return titleStyle.Render("TASK") + "\n\n" + dimStyle.Render("  Loading...") + "\n"
	}
	return titleStyle.Render("TASK "+t.ID.String()) + "\n\n" + panelStyle.Render(renderDetail(t, m.bar)) + "\n"
}

func (m Model) footer() string {
	keys := []struct{ key, desc string }{
		{"r", "refresh"},
		{"c", "cancel"},
		{"q", "quit"},
	}
	if m.screen == screenList {
		keys = append([]struct{ key, desc string }{{"↑/↓", "move"}, {"enter", "open"}}, keys...)
	} else {
		keys = append([]struct{ key, desc string }{{"esc", "back"}}, keys...)
	}
	return renderFooter(keys)
}

func renderFooter(keys []struct{ key, desc string }) string {
	var parts []string
	for _, k := range keys {
		key := footerKeyStyle.Render(k.key)
		desc := footerDescStyle.Render(k.desc)
		parts = append(parts, key+" "+desc)
	}
	return "  " + strings.Join(parts, "  ")
}

// RenderTable formats tasks as a bordered table for non-interactive output.
func RenderTable(tasks []*task.Task) string {
	return renderTable(tasks, -1, progress.New(progress.WithSolidFill("#2DD4BF"), progress.WithWidth(16)))
}

// RenderDetail formats a single task for non-interactive output.
func RenderDetail(t *task.Task) string {
	return renderDetail(t, progress.New(progress.WithSolidFill("#2DD4BF"), progress.WithWidth(24)))
}

func renderTable(tasks []*task.Task, cursor int, bar progress.Model) string {
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			shortID(t),
			string(t.State),
			bar.ViewAs(float64(t.Progress) / 100),
			task.RepositoryName(t.Input.PrimaryURL()),
			age(t.SubmittedAt),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(subtleStyle).
		Headers("ID", "STATE", "PROGRESS", "REPOSITORY", "SUBMITTED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cellStyle.Bold(true).Foreground(clrHighlight)
			}
			if row == cursor {
				return cellStyle.Inherit(selectedRowStyle)
			}
			if col == 1 && row >= 0 && row < len(tasks) {
				return cellStyle.Foreground(stateColors[tasks[row].State])
			}
			return cellStyle
		}).
		String()
}

func renderDetail(t *task.Task, bar progress.Model) string {
	state := lipgloss.NewStyle().Bold(true).Foreground(stateColors[t.State]).Render(string(t.State))
	if t.CancelRequested && !t.State.IsTerminal() {
		state += dimStyle.Render(" (cancel requested)")
	}

	lines := []string{
		field("State", state),
		field("Progress", fmt.Sprintf("%s %3d%%", bar.ViewAs(float64(t.Progress)/100), t.Progress)),
		field("Repository", strings.Join(t.Input.RepositoryLocators, ", ")),
		field("Profile", t.Input.Options.PromptProfile),
		field("Attempts", fmt.Sprintf("%d", t.AttemptCount)),
		field("Submitted", formatTime(&t.SubmittedAt)),
		field("Started", formatTime(t.StartedAt)),
		field("Completed", formatTime(t.CompletedAt)),
	}
	if t.ErrorSummary != nil {
		lines = append(lines, field("Error", errorStyle.Render(*t.ErrorSummary)))
	}
	if t.ResultReference != nil {
		lines = append(lines, field("Report", *t.ResultReference))
	}
	return strings.Join(lines, "\n")
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

func shortID(t *task.Task) string {
	return t.ID.String()[:8]
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return dimStyle.Render("-")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// age renders how long ago t was, coarsened to the largest unit.
func age(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
