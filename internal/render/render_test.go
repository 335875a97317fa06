package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/firepipe/internal/graph"
	"github.com/aristath/firepipe/internal/logging"
	"github.com/aristath/firepipe/internal/orchestrator"
	"github.com/aristath/firepipe/internal/process"
)

type namedTask struct {
	name string
	err  error
}

func (t *namedTask) Name() string                 { return t.name }
func (t *namedTask) Resources() process.Resources { return nil }
func (t *namedTask) Execute(context.Context, process.ExecutionContext) (any, error) {
	return nil, t.err
}

func forkJoin() *process.Process {
	p := process.New("fork-join", nil)
	root := &namedTask{name: "root"}
	right := &namedTask{name: "right"}
	left := &namedTask{name: "left"}
	sink := &namedTask{name: "sink"}
	p.Fork(root, right, left)
	p.Join([]process.Task{right, left}, sink)
	return p
}

func layerNames(layers [][]*process.TaskNode) [][]string {
	out := make([][]string, len(layers))
	for i, layer := range layers {
		for _, n := range layer {
			out[i] = append(out[i], n.Name())
		}
	}
	return out
}

func trimmed(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

func TestLayers(t *testing.T) {
	layers, err := Layers(forkJoin())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"root"}, {"left", "right"}, {"sink"}}, layerNames(layers))
}

func TestLayers_Serial(t *testing.T) {
	p := process.New("serial", nil)
	a, b, c := &namedTask{name: "a"}, &namedTask{name: "b"}, &namedTask{name: "c"}
	p.Connect(a, b)
	p.Connect(b, c)

	layers, err := Layers(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, layerNames(layers))
}

func TestLayers_Empty(t *testing.T) {
	layers, err := Layers(process.New("empty", nil))
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestLayers_Cycle(t *testing.T) {
	p := process.New("cyclic", nil)
	a, b := &namedTask{name: "a"}, &namedTask{name: "b"}
	p.Connect(a, b)
	p.Connect(b, a)

	_, err := Layers(p)
	assert.True(t, errors.Is(err, graph.ErrCyclicGraph))
}

func TestProcess_ForkJoin(t *testing.T) {
	lines, err := Process(forkJoin(), 10, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"root",
		"|",
		"----------",
		"|         |",
		"left     right",
		"|         |",
		"----------",
		"|",
		"sink",
		"",
	}, trimmed(lines))

	for _, l := range lines[:len(lines)-1] {
		assert.Len(t, l, 30, "line %q should fill the row", l)
	}
}

func TestProcess_SerialHasNoSplit(t *testing.T) {
	p := process.New("serial", nil)
	a, b := &namedTask{name: "a"}, &namedTask{name: "b"}
	p.Connect(a, b)

	lines, err := Process(p, 8, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "|", "b", ""}, trimmed(lines))
}

func TestCentre(t *testing.T) {
	assert.Equal(t, "   ab   ", centre("ab", 8))
	assert.Equal(t, "  abc   ", centre("abc", 8))
	assert.Equal(t, " abcde... ", centre("abcdefghijkl", 10))
	assert.Equal(t, "toolong", centre("toolong", 3))
}

func TestSummary(t *testing.T) {
	p := process.New("summary", nil)
	build := &namedTask{name: "build", err: errors.New("compile error")}
	ship := &namedTask{name: "ship"}
	docs := &namedTask{name: "docs"}
	p.Connect(build, ship)
	p.Add(docs)

	o := orchestrator.New(p, orchestrator.WithLogger(logging.Discard()))

	before := Summary(o)
	assert.Contains(t, before, "Task summary")
	assert.Contains(t, before, "pending")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := o.Run(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	out := Summary(o)
	for _, want := range []string{
		"Name", "State", "Start", "Finish", "Duration", "Blockage reason",
		"build", "failed",
		"ship", "skipped", "upstream task build failed",
		"docs", "completed",
	} {
		assert.Contains(t, out, want)
	}
}
