package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/events"
	"github.com/aristath/firepipe/internal/orchestrator"
	"github.com/aristath/firepipe/internal/pipeline"
	"github.com/aristath/firepipe/internal/process"
	"github.com/aristath/firepipe/internal/render"
	"github.com/aristath/firepipe/internal/shell"
	"github.com/aristath/firepipe/internal/tui"
)

type runOptions struct {
	tui        bool
	stream     bool
	maxWorkers int
	retries    int
	timeout    time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [pipeline]",
		Short: "Run a pipeline",
		Long: `Run every step of a pipeline, each as soon as its dependencies
completed and its resources are free.

Examples:
  firepipe run
  firepipe run release --max-workers 2 --retries 3
  firepipe run ci --tui`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-workers") {
				cfg.MaxWorkers = opts.maxWorkers
			}
			if cmd.Flags().Changed("retries") {
				cfg.Retry.MaxAttempts = opts.retries
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Timeout = config.Duration(opts.timeout)
			}

			name, pc, err := a.pipeline(cfg, args)
			if err != nil {
				return err
			}
			return a.run(cmd, cfg, name, pc, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Follow the run in the terminal UI")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print every output line of every step")
	cmd.Flags().IntVar(&opts.maxWorkers, "max-workers", 0, "Limit concurrently running steps (0 for no limit)")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "Attempts per step")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long (0 for none)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, cfg *config.OrchestratorConfig, name string, pc config.PipelineConfig, opts *runOptions) error {
	out := cmd.OutOrStdout()

	logger, closeLog, err := a.logger(cfg, cmd.ErrOrStderr(), opts.tui)
	if err != nil {
		return err
	}
	defer closeLog()

	pm := shell.NewProcessManager()
	p, err := pipeline.Build(name, pc, pm)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Timeout))
		defer cancel()
	}

	bus := events.NewEventBus()
	defer bus.Close()

	retry := cfg.Retry.Orchestrator()
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithEventBus(bus),
		orchestrator.WithMaxWorkers(cfg.MaxWorkers),
		orchestrator.WithRetry(retry),
	}
	if retry.Enabled() {
		orchOpts = append(orchOpts, orchestrator.WithCircuitBreakers(orchestrator.NewCircuitBreakerRegistry(logger)))
	}
	o := orchestrator.New(p, orchOpts...)

	runDone := make(chan struct{})
	go killOnSignal(ctx, runDone, stop, pm, logger)

	var ok bool
	var runErr error
	if opts.tui {
		ok, runErr, err = a.runTUI(ctx, o, bus, p, cfg)
		if err != nil {
			close(runDone)
			return err
		}
	} else {
		sub := bus.SubscribeAll(1024)
		printed := make(chan struct{})
		go func() {
			printProgress(out, sub, opts.stream)
			close(printed)
		}()

		fmt.Fprintf(out, "%s %s (%d steps)\n\n", color.CyanString("▶ Running"), name, p.Graph().Len())
		ok, runErr = o.Run(ctx)
		bus.Close()
		<-printed
	}
	close(runDone)

	report(out, o, logger)

	if runErr != nil {
		return fmt.Errorf("pipeline %q: %w", name, runErr)
	}
	if !ok {
		return errRunFailed
	}
	return nil
}

// runTUI runs the orchestrator in the background while the terminal UI has
// the foreground. Quitting the UI cancels a run that is still going.
func (a *app) runTUI(ctx context.Context, o *orchestrator.Orchestrator, bus *events.EventBus, p *process.Process, cfg *config.OrchestratorConfig) (ok bool, runErr, err error) {
	model := tui.New(bus, p, cfg, a.globalPath, a.projectPath)
	prog := tea.NewProgram(model, tea.WithAltScreen())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := o.Run(runCtx)
		done <- outcome{ok, err}
	}()

	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	_, tuiErr := prog.Run()
	cancelRun()
	res := <-done
	if tuiErr != nil {
		return false, nil, fmt.Errorf("terminal UI: %w", tuiErr)
	}
	return res.ok, res.err, nil
}

// killOnSignal kills every tracked subprocess once ctx is cancelled by a
// signal or the timeout, unless the run already finished.
func killOnSignal(ctx context.Context, runDone <-chan struct{}, stop context.CancelFunc, pm *shell.ProcessManager, logger *slog.Logger) {
	select {
	case <-runDone:
		return
	case <-ctx.Done():
	}

	// Restore default signal handling: a second Ctrl+C exits at once.
	stop()
	logger.Warn("run interrupted, killing subprocesses", "cause", context.Cause(ctx), "tracked", pm.Count())
	if err := pm.KillAll(); err != nil {
		logger.Error("killing subprocesses", "error", err)
	}
}

// report prints the graph and the task summary and logs every failed task.
func report(out io.Writer, o *orchestrator.Orchestrator, logger *slog.Logger) {
	fmt.Fprintln(out)
	if lines, err := render.Process(o.Process(), 20, 78); err == nil {
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprint(out, render.Summary(o))

	for _, s := range o.TaskStateList() {
		if s.Status == orchestrator.TaskFailed {
			logger.Error("task failed", "task", s.Name(), "attempt", s.Metrics.Attempt, "error", s.Metrics.Err)
		}
	}
}
