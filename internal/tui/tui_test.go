package tui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/process"
)

type stubTask struct{ name string }

func (t *stubTask) Name() string                 { return t.name }
func (t *stubTask) Resources() process.Resources { return nil }
func (t *stubTask) Execute(context.Context, process.ExecutionContext) (any, error) {
	return nil, nil
}

func testProcess() (*process.Process, *process.TaskNode, *process.TaskNode) {
	p := process.New("demo", nil)
	build := &stubTask{name: "build"}
	test := &stubTask{name: "test"}
	p.Connect(build, test)
	bn, _ := p.Node(build)
	tn, _ := p.Node(test)
	return p, bn, tn
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyShiftTab:
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTaskPaneSeedsTasksInOrder(t *testing.T) {
	p, bn, tn := testProcess()
	m := NewTaskPaneModel(p)

	if len(m.order) != 2 || m.order[0] != bn.Ref().String() || m.order[1] != tn.Ref().String() {
		t.Fatalf("unexpected order %v", m.order)
	}
	task, ok := m.Task(tn.Ref().String())
	if !ok {
		t.Fatal("test task missing")
	}
	if task.Status != StatusPending || task.Name != "test" {
		t.Errorf("unexpected entry %+v", task)
	}
	if m.Selected() != bn.Ref().String() {
		t.Errorf("first task should be selected")
	}
}

func TestTaskPaneTracksLifecycle(t *testing.T) {
	p, bn, tn := testProcess()
	m := NewTaskPaneModel(p)
	id := bn.Ref().String()

	m, _ = m.Update(events.TaskStartedEvent{ID: id, Name: "build", Attempt: 1, Timestamp: time.Now()})
	m, cmd := m.Update(events.BroadcastEvent{ID: id, Scope: "task", Key: "output", Value: "compiling"})
	if cmd == nil {
		t.Error("output for the selected task should schedule a viewport refresh")
	}
	m, _ = m.Update(events.BroadcastEvent{ID: id, Scope: "task", Key: "last-line", Value: "ignored"})
	m, _ = m.Update(events.BroadcastEvent{Scope: "process", Key: "output", Value: "ignored"})
	m, _ = m.Update(events.TaskCompletedEvent{ID: id, Name: "build", Duration: time.Second})

	build, _ := m.Task(id)
	if build.Status != StatusCompleted {
		t.Errorf("build status = %q, want completed", build.Status)
	}
	if build.Output[0] != "compiling" || len(build.Output) != 2 {
		t.Errorf("unexpected output %q", build.Output)
	}

	other := tn.Ref().String()
	m, _ = m.Update(events.TaskStartedEvent{ID: other, Name: "test", Attempt: 1})
	m, _ = m.Update(events.TaskRetryEvent{ID: other, Name: "test", Attempt: 1, Err: errors.New("flaky"), Delay: time.Millisecond})
	test, _ := m.Task(other)
	if test.Status != StatusRetrying {
		t.Errorf("test status = %q, want retrying", test.Status)
	}
	m, _ = m.Update(events.TaskStartedEvent{ID: other, Name: "test", Attempt: 2})
	m, _ = m.Update(events.TaskFailedEvent{ID: other, Name: "test", Err: errors.New("flaky")})
	test, _ = m.Task(other)
	if test.Status != StatusFailed || test.Attempt != 2 {
		t.Errorf("unexpected test entry %+v", test)
	}
}

func TestTaskPaneSelection(t *testing.T) {
	p, bn, tn := testProcess()
	m := NewTaskPaneModel(p)
	m.SetFocused(true)

	m, _ = m.Update(key(KeyJ))
	if m.Selected() != tn.Ref().String() {
		t.Fatal("j should select the next task")
	}
	m, _ = m.Update(key(KeyJ))
	if m.Selected() != tn.Ref().String() {
		t.Fatal("selection should stop at the last task")
	}
	m, _ = m.Update(key(KeyK))
	if m.Selected() != bn.Ref().String() {
		t.Fatal("k should select the previous task")
	}

	m.SetFocused(false)
	m, _ = m.Update(key(KeyJ))
	if m.Selected() != bn.Ref().String() {
		t.Fatal("unfocused pane should ignore keys")
	}
}

func TestTaskPaneCapsOutput(t *testing.T) {
	entry := &TaskEntry{}
	for i := 0; i < maxOutputLines+10; i++ {
		entry.appendOutput("line")
	}
	if len(entry.Output) != maxOutputLines {
		t.Errorf("output lines = %d, want %d", len(entry.Output), maxOutputLines)
	}
}

func TestProgressPane(t *testing.T) {
	m := NewProgressPaneModel("demo", 4)
	m.SetSize(80, 10)

	m, _ = m.Update(events.ProcessProgressEvent{Total: 4, Completed: 2, Running: 1, Skipped: 1})
	if m.Finished() {
		t.Fatal("pane should not be finished yet")
	}
	if view := m.View(); !strings.Contains(view, "3/4") {
		t.Errorf("view should show 3/4 finished tasks:\n%s", view)
	}

	m, _ = m.Update(events.RunFinishedEvent{Success: true, Duration: 1500 * time.Millisecond})
	if !m.Finished() {
		t.Fatal("pane should be finished")
	}
	if view := m.View(); !strings.Contains(view, "Run succeeded in 1.5s") {
		t.Errorf("view should report success:\n%s", view)
	}
}

func TestModelFocusCycling(t *testing.T) {
	p, _, _ := testProcess()
	bus := events.NewEventBus()
	defer bus.Close()

	cfg := config.DefaultConfig()
	var m tea.Model = New(bus, p, cfg, "global.json", "project.json")

	steps := []struct {
		key  string
		want PaneID
	}{
		{KeyTab, PaneProgress},
		{KeyTab, PaneTasks},
		{KeyShiftTab, PaneProgress},
		{KeyPane1, PaneTasks},
		{KeyPane2, PaneProgress},
	}
	for _, s := range steps {
		m, _ = m.Update(key(s.key))
		if got := m.(Model).focusedPane; got != s.want {
			t.Fatalf("after %q focused pane = %d, want %d", s.key, got, s.want)
		}
	}

	m, cmd := m.Update(key(KeyQuit))
	if cmd == nil || !m.(Model).quitting {
		t.Error("q should quit")
	}
}

func TestModelRoutesEvents(t *testing.T) {
	p, bn, _ := testProcess()
	bus := events.NewEventBus()
	defer bus.Close()

	var m tea.Model = New(bus, p, config.DefaultConfig(), "g.json", "p.json")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	id := bn.Ref().String()
	m, cmd := m.Update(events.TaskStartedEvent{ID: id, Name: "build", Attempt: 1})
	if cmd == nil {
		t.Error("events should keep waiting for the next event")
	}
	m, _ = m.Update(events.RunFinishedEvent{Success: false})

	model := m.(Model)
	if task, _ := model.taskPane.Task(id); task.Status != StatusRunning {
		t.Errorf("build status = %q, want running", task.Status)
	}
	if !model.Finished() {
		t.Error("model should report the run finished")
	}
	if view := model.View(); !strings.Contains(view, "build") {
		t.Errorf("view should list the build task:\n%s", view)
	}
}

func TestModelSettingsToggle(t *testing.T) {
	p, _, _ := testProcess()
	bus := events.NewEventBus()
	defer bus.Close()

	var m tea.Model = New(bus, p, config.DefaultConfig(), "g.json", "p.json")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	m, _ = m.Update(key(KeySettings))
	if !m.(Model).showSettings {
		t.Fatal("s should open settings")
	}

	// q is swallowed by the form while settings are open.
	m, _ = m.Update(key(KeyQuit))
	if m.(Model).quitting {
		t.Fatal("q must not quit while settings are open")
	}

	m, _ = m.Update(key(KeyEsc))
	if m.(Model).showSettings {
		t.Fatal("esc should close settings")
	}
}

func TestSettingsSave(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global", "config.json")
	projectPath := filepath.Join(dir, "project", "config.json")

	cfg := config.DefaultConfig()
	m := NewSettingsPaneModel(cfg, globalPath, projectPath)
	m.saveTarget = TargetProject
	m.maxWorkers = "3"
	m.retryAttempts = "2"
	m.logLevel = "debug"

	if err := m.save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.MaxWorkers != 3 || cfg.Retry.MaxAttempts != 2 || cfg.LogLevel != "debug" {
		t.Errorf("in-memory config not updated: %+v", cfg)
	}

	loaded, err := config.Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.MaxWorkers != 3 || loaded.Retry.MaxAttempts != 2 {
		t.Errorf("saved config not loaded back: workers=%d attempts=%d", loaded.MaxWorkers, loaded.Retry.MaxAttempts)
	}

	m.maxWorkers = "many"
	if err := m.save(); err == nil {
		t.Error("expected error for non-numeric max workers")
	}
}

func TestValidators(t *testing.T) {
	if nonNegative("0") != nil || nonNegative("-1") == nil || nonNegative("x") == nil {
		t.Error("nonNegative misbehaves")
	}
	if positive("1") != nil || positive("0") == nil {
		t.Error("positive misbehaves")
	}
}
