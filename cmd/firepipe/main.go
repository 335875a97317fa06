// Command firepipe runs configured command pipelines as dependency graphs.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/logging"
)

var version = "0.1.0"

// errRunFailed reports a run that finished with failed or skipped tasks.
// The tasks themselves were already reported.
var errRunFailed = errors.New("pipeline failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		}
		os.Exit(1)
	}
}

// app holds the persistent flags shared by every command.
type app struct {
	debug       bool
	logFormat   string
	logFile     string
	globalPath  string
	projectPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "firepipe",
		Short: "Run command pipelines as dependency graphs",
		Long: `firepipe runs the steps of a pipeline as soon as their dependencies
completed and enough of their resources are free.

Pipelines are read from ~/.firepipe/config.json and .firepipe/config.json,
on top of a built-in "ci" pipeline (gofmt, go vet, go test).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.globalPath != "" {
				return nil
			}
			path, err := config.GlobalPath()
			if err != nil {
				return err
			}
			a.globalPath = path
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&a.globalPath, "global-config", "", "Global config file (default ~/.firepipe/config.json)")
	rootCmd.PersistentFlags().StringVar(&a.projectPath, "project-config", config.ProjectPath(), "Project config file")

	rootCmd.AddCommand(
		newRunCmd(a),
		newGraphCmd(a),
		newValidateCmd(a),
		newPipelinesCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

// loadConfig merges the global and project config files over the defaults.
func (a *app) loadConfig() (*config.OrchestratorConfig, error) {
	return config.Load(a.globalPath, a.projectPath)
}

// pipeline returns the pipeline named by args, or the default one.
func (a *app) pipeline(cfg *config.OrchestratorConfig, args []string) (string, config.PipelineConfig, error) {
	name := config.DefaultPipeline
	if len(args) > 0 {
		name = args[0]
	}
	pc, ok := cfg.Pipelines[name]
	if !ok {
		return "", config.PipelineConfig{}, fmt.Errorf("unknown pipeline %q", name)
	}
	return name, pc, nil
}

// logger builds the run logger. It writes to --log-file when set, to stderr
// otherwise, or nowhere when quiet is set and no file was given.
func (a *app) logger(cfg *config.OrchestratorConfig, stderr io.Writer, quiet bool) (*slog.Logger, func(), error) {
	level := cfg.LogLevel
	if a.debug {
		level = "debug"
	}

	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return logging.New(level, a.logFormat, f), func() { f.Close() }, nil
	}
	if quiet {
		return logging.Discard(), func() {}, nil
	}
	return logging.New(level, a.logFormat, stderr), func() {}, nil
}
