package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/firepipe/internal/events"
)

// ProgressPaneModel shows the run's status counts and a progress bar.
type ProgressPaneModel struct {
	process   string
	total     int
	completed int
	running   int
	failed    int
	skipped   int
	pending   int

	finished bool
	success  bool
	runErr   error
	elapsed  time.Duration

	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates a progress pane for a process of total tasks.
func NewProgressPaneModel(process string, total int) ProgressPaneModel {
	return ProgressPaneModel{process: process, total: total, pending: total}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ProcessProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.pending = msg.Pending

	case events.RunFinishedEvent:
		m.finished = true
		m.success = msg.Success
		m.runErr = msg.Err
		m.elapsed = msg.Duration
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress: " + m.process)
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total: %d  Completed: %s  Running: %s  Failed: %s  Skipped: %s  Pending: %s\n",
		m.total,
		StyleStatusComplete.Render(fmt.Sprint(m.completed)),
		StyleStatusRunning.Render(fmt.Sprint(m.running)),
		StyleStatusFailed.Render(fmt.Sprint(m.failed)),
		StyleStatusSkipped.Render(fmt.Sprint(m.skipped)),
		StyleStatusPending.Render(fmt.Sprint(m.pending)),
	)

	if m.total > 0 {
		b.WriteString("\n")
		b.WriteString(m.bar(min(m.width-16, 60)))
		fmt.Fprintf(&b, "  %d/%d\n", m.completed+m.failed+m.skipped, m.total)
	}

	if m.finished {
		b.WriteString("\n")
		switch {
		case m.runErr != nil:
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Run aborted after %v: %v", m.elapsed.Round(time.Millisecond), m.runErr)))
		case m.success:
			b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Run succeeded in %v", m.elapsed.Round(time.Millisecond))))
		default:
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Run failed in %v", m.elapsed.Round(time.Millisecond))))
		}
		b.WriteString(StyleHelp.Render("  (q to exit)"))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// bar draws completed, failed, skipped, running and pending segments.
func (m ProgressPaneModel) bar(width int) string {
	width = max(width, 10)
	completed := m.completed * width / m.total
	failed := m.failed * width / m.total
	skipped := m.skipped * width / m.total
	running := m.running * width / m.total
	pending := max(0, width-completed-failed-skipped-running)

	return "[" +
		StyleStatusComplete.Render(strings.Repeat("=", completed)) +
		StyleStatusFailed.Render(strings.Repeat("!", failed)) +
		StyleStatusSkipped.Render(strings.Repeat("~", skipped)) +
		StyleStatusRunning.Render(strings.Repeat("-", running)) +
		StyleStatusPending.Render(strings.Repeat(".", pending)) +
		"]"
}

// Finished reports whether the run ended.
func (m ProgressPaneModel) Finished() bool {
	return m.finished
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
