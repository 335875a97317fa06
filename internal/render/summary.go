package render

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/firepipe/internal/orchestrator"
)

const timeLayout = "15:04:05.000"

// Summary renders one table row per task with its state, timing and
// blockage reason.
func Summary(o *orchestrator.Orchestrator) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Name", "State", "Start", "Finish", "Duration", "Blockage reason")

	for _, s := range o.TaskStateList() {
		reason, _ := o.BlockageReason(s)
		t.Row(
			s.Name(),
			s.Status.String(),
			clock(s.Metrics.StartTime),
			clock(s.Metrics.EndTime),
			elapsed(s.Metrics.Duration, s.Metrics.Done),
			reason,
		)
	}

	var b strings.Builder
	b.WriteString("Task summary\n\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func elapsed(d time.Duration, done bool) string {
	if !done {
		return ""
	}
	return d.Round(time.Millisecond).String()
}
