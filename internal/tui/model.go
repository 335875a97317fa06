// Package tui is the interactive terminal view of a running pipeline.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/process"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane          TaskPaneModel
	progressPane      ProgressPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.OrchestratorConfig
	globalConfigPath  string
	projectConfigPath string
}

// New creates a new TUI model for p.
// It subscribes to all events from the event bus using SubscribeAll, so it
// must be created before the run starts.
func New(eventBus *events.EventBus, p *process.Process, cfg *config.OrchestratorConfig, globalPath, projectPath string) Model {
	m := Model{
		taskPane:          NewTaskPaneModel(p),
		progressPane:      NewProgressPaneModel(p.Name(), p.Graph().Len()),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:       PaneTasks,
		eventSub:          eventBus.SubscribeAll(1024),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings are modal.
		if m.showSettings {
			if msg.String() == KeyEsc {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			switch m.focusedPane {
			case PaneTasks:
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneProgress:
				var cmd tea.Cmd
				m.progressPane, cmd = m.progressPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.TaskStartedEvent, events.TaskCompletedEvent, events.TaskFailedEvent,
		events.TaskSkippedEvent, events.TaskRetryEvent, events.BroadcastEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ProcessProgressEvent, events.RunFinishedEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.taskPane.View(),
		m.progressPane.View(),
		HelpView(),
	)
}

// Finished reports whether the run this model follows has ended.
func (m Model) Finished() bool {
	return m.progressPane.Finished()
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	availableHeight := m.height - 1 // help bar
	progressHeight := min(max(availableHeight*25/100, 8), availableHeight)
	taskHeight := availableHeight - progressHeight

	m.taskPane.SetSize(m.width, taskHeight)
	m.progressPane.SetSize(m.width, progressHeight)

	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
