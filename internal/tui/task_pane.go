package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/process"
	"github.com/aristath/firepipe/internal/shell"
)

const (
	listWidth      = 25
	maxOutputLines = 5000
)

// Task display states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusRetrying  = "retrying"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// TaskEntry is what the pane knows about one task.
type TaskEntry struct {
	ID        string
	Name      string
	Status    string
	Attempt   int
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// TaskPaneModel shows the task list and the selected task's output.
type TaskPaneModel struct {
	tasks       map[string]*TaskEntry // ref -> entry
	order       []string              // topological order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel lists every task of p as pending.
func NewTaskPaneModel(p *process.Process) TaskPaneModel {
	m := TaskPaneModel{
		tasks:    make(map[string]*TaskEntry),
		viewport: viewport.New(0, 0),
	}
	if p == nil {
		return m
	}

	nodes, err := p.Graph().TopologicalSort()
	if err != nil {
		nodes = p.Graph().Nodes()
	}
	for _, n := range nodes {
		m.add(n.Ref().String(), n.Name())
	}
	m.updateViewportContent()
	return m
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.add(msg.ID, msg.Name)
		task.Status = StatusRunning
		task.Attempt = msg.Attempt
		task.StartTime = msg.Timestamp
		if msg.Attempt > 1 {
			task.Output = append(task.Output, fmt.Sprintf("[Attempt %d]", msg.Attempt))
		}
		m.refreshIfSelected(msg.ID)

	case events.BroadcastEvent:
		if msg.Scope != "task" || msg.Key != string(shell.OutputKey) {
			break
		}
		task, exists := m.tasks[msg.ID]
		if !exists {
			break
		}
		task.appendOutput(fmt.Sprint(msg.Value))
		if m.selectedID() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TaskCompletedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = StatusCompleted
			task.Duration = msg.Duration
			task.appendOutput(fmt.Sprintf("\n[Completed in %v]", msg.Duration.Round(time.Millisecond)))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskFailedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = StatusFailed
			task.Duration = msg.Duration
			task.appendOutput(fmt.Sprintf("\n[Failed: %v]", msg.Err))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskRetryEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = StatusRetrying
			task.appendOutput(fmt.Sprintf("\n[Attempt %d failed: %v, retrying in %v]", msg.Attempt, msg.Err, msg.Delay.Round(time.Millisecond)))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskSkippedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = StatusSkipped
			task.appendOutput(fmt.Sprintf("[Skipped: %s]", msg.Reason))
			m.refreshIfSelected(msg.ID)
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("No tasks"))
	}
	for i, id := range m.order {
		task := m.tasks[id]
		name := task.Name
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return StyleStatusRunning.Render("●")
	case StatusRetrying:
		return StyleStatusRunning.Render("↻")
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	case StatusSkipped:
		return StyleStatusSkipped.Render("⊘")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the entry for the task ref id.
func (m TaskPaneModel) Task(id string) (TaskEntry, bool) {
	task, ok := m.tasks[id]
	if !ok {
		return TaskEntry{}, false
	}
	cp := *task
	cp.Output = append([]string(nil), task.Output...)
	return cp, true
}

// Selected returns the ref of the selected task, empty when there is none.
func (m TaskPaneModel) Selected() string {
	return m.selectedID()
}

func (m *TaskPaneModel) add(id, name string) *TaskEntry {
	if task, ok := m.tasks[id]; ok {
		return task
	}
	task := &TaskEntry{ID: id, Name: name, Status: StatusPending}
	m.tasks[id] = task
	m.order = append(m.order, id)
	return task
}

func (t *TaskEntry) appendOutput(line string) {
	t.Output = append(t.Output, line)
	if over := len(t.Output) - maxOutputLines; over > 0 {
		t.Output = t.Output[over:]
	}
}

func (m TaskPaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) refreshIfSelected(id string) {
	if m.selectedID() == id {
		m.updateViewportContent()
	}
}

// updateViewportContent shows the selected task's output, scrolled to the end.
func (m *TaskPaneModel) updateViewportContent() {
	task, exists := m.tasks[m.selectedID()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	if len(task.Output) == 0 {
		m.viewport.SetContent(StyleStatusPending.Render(fmt.Sprintf("%s: no output yet", task.Name)))
		return
	}
	m.viewport.SetContent(strings.Join(task.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
