package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/firepipe/internal/config"
)

// Save targets offered by the settings form.
const (
	TargetGlobal  = "global"
	TargetProject = "project"
)

// SettingsPaneModel manages the settings form overlay. Saved settings apply
// to the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.OrchestratorConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget    string
	maxWorkers    string
	retryAttempts string
	logLevel      string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.OrchestratorConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.resetFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) resetFields() {
	m.saveTarget = TargetGlobal
	m.maxWorkers = strconv.Itoa(m.config.MaxWorkers)
	m.retryAttempts = strconv.Itoa(m.config.Retry.MaxAttempts)
	m.logLevel = m.config.LogLevel
	if m.logLevel == "" {
		m.logLevel = "info"
	}
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global ("+m.globalPath+")", TargetGlobal),
					huh.NewOption("Project ("+m.projectPath+")", TargetProject),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxWorkers").
				Title("Max Workers").
				Description("0 leaves concurrency to the resource pools").
				Value(&m.maxWorkers).
				Validate(nonNegative).
				Placeholder("0"),

			huh.NewInput().
				Key("retryAttempts").
				Title("Retry Attempts").
				Description("Attempts per task, 1 disables retries").
				Value(&m.retryAttempts).
				Validate(positive).
				Placeholder("1"),

			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.logLevel),
		).Title("Run Settings"),
	)
}

func nonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		// The form's bound pointers refer to the copy it was built from.
		m.saveTarget = m.form.GetString("saveTarget")
		m.maxWorkers = m.form.GetString("maxWorkers")
		m.retryAttempts = m.form.GetString("retryAttempts")
		m.logLevel = m.form.GetString("logLevel")
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save writes the form values to the chosen file and the in-memory config.
func (m *SettingsPaneModel) save() error {
	workers, err := strconv.Atoi(m.maxWorkers)
	if err != nil {
		return fmt.Errorf("max workers: %w", err)
	}
	attempts, err := strconv.Atoi(m.retryAttempts)
	if err != nil {
		return fmt.Errorf("retry attempts: %w", err)
	}

	apply := func(cfg *config.OrchestratorConfig) {
		cfg.MaxWorkers = workers
		cfg.Retry.MaxAttempts = attempts
		cfg.LogLevel = m.logLevel
	}

	if err := config.Update(m.targetPath(), apply); err != nil {
		return err
	}
	apply(m.config)
	return nil
}

func (m SettingsPaneModel) targetPath() string {
	if m.saveTarget == TargetProject {
		return m.projectPath
	}
	return m.globalPath
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	switch {
	case m.saved && m.form.State == huh.StateCompleted:
		content = StyleStatusComplete.Render("✓ Settings saved to " + m.targetPath())
	case m.err != nil:
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	default:
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (apply to the next run)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it starts a fresh form.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.resetFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
