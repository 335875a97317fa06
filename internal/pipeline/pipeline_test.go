package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/firepipe/internal/config"
	"github.com/aristath/firepipe/internal/logging"
	"github.com/aristath/firepipe/internal/orchestrator"
	"github.com/aristath/firepipe/internal/process"
	"github.com/aristath/firepipe/internal/shell"
)

func step(name string, deps ...string) config.StepConfig {
	return config.StepConfig{Name: name, Command: []string{"true"}, DependsOn: deps}
}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestValidate_Order(t *testing.T) {
	pc := config.PipelineConfig{
		Steps: []config.StepConfig{
			step("package", "build", "test"),
			step("test", "build"),
			step("build"),
			step("docs"),
		},
	}

	order, err := Validate(pc)
	require.NoError(t, err)
	require.Len(t, order, 4)

	assert.Less(t, indexOf(order, "build"), indexOf(order, "test"))
	assert.Less(t, indexOf(order, "build"), indexOf(order, "package"))
	assert.Less(t, indexOf(order, "test"), indexOf(order, "package"))
	assert.GreaterOrEqual(t, indexOf(order, "docs"), 0)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		pc      config.PipelineConfig
		message string
	}{
		{
			name:    "empty name",
			pc:      config.PipelineConfig{Steps: []config.StepConfig{step(" ")}},
			message: "has no name",
		},
		{
			name:    "duplicate step",
			pc:      config.PipelineConfig{Steps: []config.StepConfig{step("a"), step("a")}},
			message: `duplicate step "a"`,
		},
		{
			name:    "missing command",
			pc:      config.PipelineConfig{Steps: []config.StepConfig{{Name: "a"}}},
			message: `step "a" has no command`,
		},
		{
			name:    "unknown dependency",
			pc:      config.PipelineConfig{Steps: []config.StepConfig{step("a", "ghost")}},
			message: `non-existent step "ghost"`,
		},
		{
			name: "undeclared resource",
			pc: config.PipelineConfig{Steps: []config.StepConfig{
				{Name: "a", Command: []string{"true"}, Resources: map[string]int{"gpu": 1}},
			}},
			message: `undeclared resource "gpu"`,
		},
		{
			name: "negative resource",
			pc: config.PipelineConfig{
				Resources: map[string]int{"cpu": 1},
				Steps: []config.StepConfig{
					{Name: "a", Command: []string{"true"}, Resources: map[string]int{"cpu": -1}},
				},
			},
			message: "negative amount",
		},
		{
			name: "resource above capacity",
			pc: config.PipelineConfig{
				Resources: map[string]int{"cpu": 2},
				Steps: []config.StepConfig{
					{Name: "a", Command: []string{"true"}, Resources: map[string]int{"cpu": 3}},
				},
			},
			message: "pool holds 2",
		},
		{
			name:    "cycle",
			pc:      config.PipelineConfig{Steps: []config.StepConfig{step("a", "c"), step("b", "a"), step("c", "b")}},
			message: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.pc)
			require.ErrorIs(t, err, ErrInvalid)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestValidate_DefaultPipeline(t *testing.T) {
	cfg := config.DefaultConfig()
	order, err := Validate(cfg.Pipelines[config.DefaultPipeline])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Lint", "Vet", "Test"}, order)
}

func TestBuild(t *testing.T) {
	pc := config.PipelineConfig{
		Resources: map[string]int{"cpu": 2, "net": 1},
		Steps: []config.StepConfig{
			{Name: "build", Command: []string{"make"}, Dir: "/tmp", Resources: map[string]int{"cpu": 2}},
			{Name: "upload", Command: []string{"curl", "-T", "out"}, DependsOn: []string{"build"}, Resources: map[string]int{"net": 1}},
		},
	}

	p, err := Build("release", pc, nil)
	require.NoError(t, err)
	assert.Equal(t, "release", p.Name())
	assert.Equal(t, 2, p.Graph().Len())
	assert.Equal(t, 1, p.Graph().EdgeCount())

	pool := map[string]int{}
	for r, n := range p.Resources() {
		pool[r.Name()] = n
	}
	assert.Equal(t, map[string]int{"cpu": 2, "net": 1}, pool)

	tasks := p.Tasks()
	require.Len(t, tasks, 2)
	build := tasks[0].(*shell.Task)
	upload := tasks[1].(*shell.Task)
	assert.Equal(t, "build", build.Name())
	assert.Equal(t, "/tmp", build.Dir())
	assert.Equal(t, []string{"curl", "-T", "out"}, upload.Args())

	// Step requirements point at the same resource as the pool.
	poolResources := p.Resources()
	for r, n := range build.Resources() {
		assert.Equal(t, "cpu", r.Name())
		assert.Equal(t, 2, n)
		_, shared := poolResources[r]
		assert.True(t, shared, "step resource must be the pool's resource")
	}

	buildNode, ok := p.Node(build)
	require.True(t, ok)
	uploadNode, ok := p.Node(upload)
	require.True(t, ok)
	assert.Equal(t, []*process.TaskNode{buildNode}, p.Graph().Incoming(uploadNode))
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build("broken", config.PipelineConfig{Steps: []config.StepConfig{step("a", "b")}}, nil)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), `pipeline "broken"`)
}

func TestBuild_Runs(t *testing.T) {
	pc := config.PipelineConfig{
		Resources: map[string]int{"cpu": 1},
		Steps: []config.StepConfig{
			{Name: "first", Command: []string{"sh", "-c", "echo one"}, Resources: map[string]int{"cpu": 1}},
			{Name: "second", Command: []string{"sh", "-c", "echo two"}, DependsOn: []string{"first"}, Resources: map[string]int{"cpu": 1}},
		},
	}

	pm := shell.NewProcessManager()
	p, err := Build("echo", pc, pm)
	require.NoError(t, err)

	o := orchestrator.New(p, orchestrator.WithLogger(logging.Discard()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok, err := o.Run(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, task := range p.Tasks() {
		m, found := o.TaskMetrics(task)
		require.True(t, found)
		require.True(t, m.Success, "%s should succeed", task.Name())
		res := m.Result.(shell.Result)
		assert.Equal(t, 0, res.ExitCode)
	}
	assert.Equal(t, 0, pm.Count())
}
