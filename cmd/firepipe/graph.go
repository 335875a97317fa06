package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/firepipe/internal/pipeline"
	"github.com/aristath/firepipe/internal/render"
)

func newGraphCmd(a *app) *cobra.Command {
	var nodeWidth, rowWidth int

	cmd := &cobra.Command{
		Use:   "graph [pipeline]",
		Short: "Draw the dependency graph of a pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			name, pc, err := a.pipeline(cfg, args)
			if err != nil {
				return err
			}

			p, err := pipeline.Build(name, pc, nil)
			if err != nil {
				return err
			}
			lines, err := render.Process(p, nodeWidth, rowWidth)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&nodeWidth, "node-width", 20, "Columns per step")
	cmd.Flags().IntVar(&rowWidth, "row-width", 78, "Columns per line")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline]",
		Short: "Check a pipeline for missing dependencies, resources and cycles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			name, pc, err := a.pipeline(cfg, args)
			if err != nil {
				return err
			}

			order, err := pipeline.Validate(pc)
			if err != nil {
				return fmt.Errorf("pipeline %q: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s pipeline %s is valid: %s\n",
				color.GreenString("✓"), name, strings.Join(order, " → "))
			return nil
		},
	}
}

func newPipelinesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List the configured pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(cfg.Pipelines))
			for name := range cfg.Pipelines {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				steps := cfg.Pipelines[name].Steps
				stepNames := make([]string, len(steps))
				for i, s := range steps {
					stepNames[i] = s.Name
				}
				fmt.Fprintf(out, "%s  %s\n", color.CyanString("%-12s", name), strings.Join(stepNames, ", "))
			}
			return nil
		},
	}
}
