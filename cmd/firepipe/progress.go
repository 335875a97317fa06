package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/shell"
)

var (
	startedColor = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed)
	retryColor   = color.New(color.FgYellow)
	mutedColor   = color.New(color.FgHiBlack)
)

// printProgress writes one line per task event until sub is closed. With
// stream set, every output line of every task is printed too.
func printProgress(out io.Writer, sub <-chan events.Event, stream bool) {
	names := make(map[string]string)

	for ev := range sub {
		switch e := ev.(type) {
		case events.TaskStartedEvent:
			names[e.ID] = e.Name
			if e.Attempt > 1 {
				startedColor.Fprintf(out, "  ► %s (attempt %d)\n", e.Name, e.Attempt)
			} else {
				startedColor.Fprintf(out, "  ► %s\n", e.Name)
			}

		case events.BroadcastEvent:
			if !stream || e.Scope != "task" || e.Key != string(shell.OutputKey) {
				continue
			}
			fmt.Fprintf(out, "    %s │ %v\n", mutedColor.Sprint(names[e.ID]), e.Value)

		case events.TaskCompletedEvent:
			successColor.Fprintf(out, "  ✓ %s (%v)\n", e.Name, e.Duration.Round(time.Millisecond))

		case events.TaskFailedEvent:
			failureColor.Fprintf(out, "  ✗ %s: %v\n", e.Name, e.Err)

		case events.TaskRetryEvent:
			retryColor.Fprintf(out, "  ↻ %s: attempt %d failed (%v), retrying in %v\n",
				e.Name, e.Attempt, e.Err, e.Delay.Round(time.Millisecond))

		case events.TaskSkippedEvent:
			mutedColor.Fprintf(out, "  ⊘ %s: %s\n", e.Name, e.Reason)

		case events.RunFinishedEvent:
			fmt.Fprintln(out)
			switch {
			case e.Err != nil:
				failureColor.Fprintf(out, "Run aborted after %v: %v\n", e.Duration.Round(time.Millisecond), e.Err)
			case e.Success:
				successColor.Fprintf(out, "Run succeeded in %v\n", e.Duration.Round(time.Millisecond))
			default:
				failureColor.Fprintf(out, "Run failed in %v\n", e.Duration.Round(time.Millisecond))
			}
		}
	}
}
