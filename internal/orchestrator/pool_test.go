package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/firepipe/internal/process"
)

// TestResourcePool_AcquireRelease verifies basic acquire/release accounting.
func TestResourcePool_AcquireRelease(t *testing.T) {
	cpu := process.NewResource("cpu")
	pool := NewResourcePool(process.Resources{cpu: 2})

	require.True(t, pool.Acquire(process.Resources{cpu: 1}), "first acquire")
	require.True(t, pool.Acquire(process.Resources{cpu: 1}), "second acquire")
	require.False(t, pool.Acquire(process.Resources{cpu: 1}), "third acquire at capacity 2")
	assert.Equal(t, 2, pool.Held(cpu))

	pool.Release(process.Resources{cpu: 1})
	assert.Equal(t, 1, pool.Available(cpu))
}

// TestResourcePool_AllOrNothing verifies a partially satisfiable requirement takes nothing.
func TestResourcePool_AllOrNothing(t *testing.T) {
	cpu := process.NewResource("cpu")
	gpu := process.NewResource("gpu")
	pool := NewResourcePool(process.Resources{cpu: 2, gpu: 1})

	pool.Acquire(process.Resources{gpu: 1})

	require.False(t, pool.Acquire(process.Resources{cpu: 1, gpu: 1}))
	assert.Zero(t, pool.Held(cpu), "cpu must not be held after failed acquire")
}

// TestResourcePool_ShortfallSorted verifies every unsatisfied resource is reported by name.
func TestResourcePool_ShortfallSorted(t *testing.T) {
	zeta := process.NewResource("zeta")
	alpha := process.NewResource("alpha")
	mid := process.NewResource("mid")
	pool := NewResourcePool(process.Resources{zeta: 1, alpha: 1, mid: 5})

	pool.Acquire(process.Resources{zeta: 1, alpha: 1})

	short := pool.Shortfall(process.Resources{zeta: 1, alpha: 1, mid: 1})
	require.Len(t, short, 2)
	assert.Same(t, alpha, short[0])
	assert.Same(t, zeta, short[1])
	assert.Equal(t, "resources alpha, zeta exhausted", exhaustedReason(short))
}

// TestResourcePool_ZeroRequirement verifies zero-unit requirements never block.
func TestResourcePool_ZeroRequirement(t *testing.T) {
	cpu := process.NewResource("cpu")
	pool := NewResourcePool(process.Resources{cpu: 1})
	pool.Acquire(process.Resources{cpu: 1})

	assert.Empty(t, pool.Shortfall(process.Resources{cpu: 0}))
}

// TestResourcePool_ReleaseClamps verifies over-release never goes negative.
func TestResourcePool_ReleaseClamps(t *testing.T) {
	cpu := process.NewResource("cpu")
	pool := NewResourcePool(process.Resources{cpu: 1})

	pool.Release(process.Resources{cpu: 3})
	assert.Zero(t, pool.Held(cpu))
	assert.Equal(t, 1, pool.Available(cpu))
}

// TestResourcePool_Validate verifies requirements are checked against declared capacity.
func TestResourcePool_Validate(t *testing.T) {
	cpu := process.NewResource("cpu")
	other := process.NewResource("cpu")
	pool := NewResourcePool(process.Resources{cpu: 2})

	assert.NoError(t, pool.Validate("ok", process.Resources{cpu: 2}))

	var resErr *ResourceError
	require.ErrorAs(t, pool.Validate("lookalike", process.Resources{other: 1}), &resErr)
	assert.False(t, resErr.Declared, "a resource with the same name is still a different resource")
}

// TestResourcePool_CapacityIsCopied verifies later changes to the input map have no effect.
func TestResourcePool_CapacityIsCopied(t *testing.T) {
	cpu := process.NewResource("cpu")
	capacity := process.Resources{cpu: 1}
	pool := NewResourcePool(capacity)
	capacity[cpu] = 10

	got, _ := pool.Capacity(cpu)
	assert.Equal(t, 1, got)
}
