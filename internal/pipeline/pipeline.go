// Package pipeline turns a configured pipeline into a runnable process.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/process"
	"github.com/aristath/firepipe/internal/shell"
)

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("invalid pipeline")

// Validate checks a pipeline definition and returns its step names in an
// order that runs every dependency before its dependents.
func Validate(pc config.PipelineConfig) ([]string, error) {
	if len(pc.Steps) == 0 {
		return nil, nil
	}

	steps := make(map[string]config.StepConfig, len(pc.Steps))
	for i, step := range pc.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return nil, fmt.Errorf("%w: step %d has no name", ErrInvalid, i)
		}
		if _, exists := steps[step.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate step %q", ErrInvalid, step.Name)
		}
		if len(step.Command) == 0 || step.Command[0] == "" {
			return nil, fmt.Errorf("%w: step %q has no command", ErrInvalid, step.Name)
		}
		steps[step.Name] = step
	}

	for _, step := range pc.Steps {
		for _, dep := range step.DependsOn {
			if _, exists := steps[dep]; !exists {
				return nil, fmt.Errorf("%w: step %q depends on non-existent step %q", ErrInvalid, step.Name, dep)
			}
		}
		for _, res := range sortedKeys(step.Resources) {
			amount := step.Resources[res]
			capacity, declared := pc.Resources[res]
			switch {
			case !declared:
				return nil, fmt.Errorf("%w: step %q requires undeclared resource %q", ErrInvalid, step.Name, res)
			case amount < 0:
				return nil, fmt.Errorf("%w: step %q requires a negative amount of resource %q", ErrInvalid, step.Name, res)
			case amount > capacity:
				return nil, fmt.Errorf("%w: step %q requires %d of resource %q but the pool holds %d", ErrInvalid, step.Name, amount, res, capacity)
			}
		}
	}

	// Edge (dep, step) means dep must come before step.
	var edges []toposort.Edge
	for _, step := range pc.Steps {
		if len(step.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, step.Name})
			continue
		}
		for _, dep := range step.DependsOn {
			edges = append(edges, toposort.Edge{dep, step.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	order := make([]string, 0, len(steps))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(steps) {
		return nil, fmt.Errorf("%w: dependency cycle among %s", ErrInvalid, strings.Join(unordered(steps, order), ", "))
	}
	return order, nil
}

// Build validates pc and creates a process with one shell task per step.
// Tasks are tracked by pm when it is non-nil.
func Build(name string, pc config.PipelineConfig, pm *shell.ProcessManager) (*process.Process, error) {
	if _, err := Validate(pc); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}

	pool := make(process.Resources, len(pc.Resources))
	byName := make(map[string]*process.Resource, len(pc.Resources))
	for _, res := range sortedKeys(pc.Resources) {
		r := process.NewResource(res)
		byName[res] = r
		pool[r] = pc.Resources[res]
	}

	p := process.New(name, pool)
	tasks := make(map[string]*shell.Task, len(pc.Steps))
	for _, step := range pc.Steps {
		required := make(process.Resources, len(step.Resources))
		for res, amount := range step.Resources {
			required[byName[res]] = amount
		}

		opts := []shell.Option{
			shell.WithResources(required),
			shell.WithProcessManager(pm),
		}
		if step.Dir != "" {
			opts = append(opts, shell.WithDir(step.Dir))
		}
		if len(step.Env) > 0 {
			opts = append(opts, shell.WithEnv(step.Env...))
		}

		t := shell.NewTask(step.Name, step.Command, opts...)
		tasks[step.Name] = t
		p.Add(t)
	}

	for _, step := range pc.Steps {
		for _, dep := range step.DependsOn {
			p.Connect(tasks[dep], tasks[step.Name])
		}
	}
	return p, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unordered(steps map[string]config.StepConfig, order []string) []string {
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	var missing []string
	for name := range steps {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
