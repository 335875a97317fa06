package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitLatestReportsChanges(t *testing.T) {
	s := NewStore()
	addr := Address{Scope: ScopeProcess, Key: "stage"}

	assert.Equal(t, Changed, s.Emit(addr, ModeLatest, "lint"))
	assert.Equal(t, Unchanged, s.Emit(addr, ModeLatest, "lint"))
	assert.Equal(t, Changed, s.Emit(addr, ModeLatest, "test"))

	v, ok := s.Get(addr)
	require.True(t, ok)
	assert.Equal(t, ModeLatest, v.Mode)
	assert.Equal(t, "test", v.Latest)
	assert.Nil(t, v.Values)
}

func TestEmitLatestComparesDeeply(t *testing.T) {
	s := NewStore()
	addr := Address{Scope: ScopeProcess, Key: "counts"}

	s.Emit(addr, ModeLatest, map[string]int{"done": 1})
	assert.Equal(t, Unchanged, s.Emit(addr, ModeLatest, map[string]int{"done": 1}))
	assert.Equal(t, Changed, s.Emit(addr, ModeLatest, map[string]int{"done": 2}))
}

func TestEmitAppendAccumulates(t *testing.T) {
	s := NewStore()
	addr := Address{Scope: ScopeTask, Owner: "ref-1", Key: "output"}

	assert.Equal(t, Changed, s.Emit(addr, ModeAppend, "line 1"))
	assert.Equal(t, Changed, s.Emit(addr, ModeAppend, "line 1"))
	assert.Equal(t, Changed, s.Emit(addr, ModeAppend, "line 2"))

	v, ok := s.Get(addr)
	require.True(t, ok)
	assert.Equal(t, []any{"line 1", "line 1", "line 2"}, v.Values)
}

func TestTaskScopeIsolatedByOwner(t *testing.T) {
	s := NewStore()
	s.Emit(Address{Scope: ScopeTask, Owner: "a", Key: "status"}, ModeLatest, "busy")

	_, ok := s.Get(Address{Scope: ScopeTask, Owner: "b", Key: "status"})
	assert.False(t, ok)
	_, ok = s.Get(Address{Scope: ScopeProcess, Key: "status"})
	assert.False(t, ok)

	v, ok := s.Get(Address{Scope: ScopeTask, Owner: "a", Key: "status"})
	require.True(t, ok)
	assert.Equal(t, "busy", v.Latest)
}

func TestProcessScopeIgnoresOwner(t *testing.T) {
	s := NewStore()
	s.Emit(Address{Scope: ScopeProcess, Owner: "a", Key: "phase"}, ModeLatest, 1)

	v, ok := s.Get(Address{Scope: ScopeProcess, Owner: "b", Key: "phase"})
	require.True(t, ok)
	assert.Equal(t, 1, v.Latest)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	addr := Address{Scope: ScopeProcess, Key: "log"}
	s.Emit(addr, ModeAppend, "a")

	v, _ := s.Get(addr)
	v.Values[0] = "mutated"

	again, _ := s.Get(addr)
	assert.Equal(t, []any{"a"}, again.Values)
}

func TestModeSwitchResetsValue(t *testing.T) {
	s := NewStore()
	addr := Address{Scope: ScopeProcess, Key: "k"}
	s.Emit(addr, ModeAppend, "a")

	assert.Equal(t, Changed, s.Emit(addr, ModeLatest, "b"))
	v, _ := s.Get(addr)
	assert.Equal(t, ModeLatest, v.Mode)
	assert.Equal(t, "b", v.Latest)
	assert.Nil(t, v.Values)
}

func TestSnapshotIsOrdered(t *testing.T) {
	s := NewStore()
	s.Emit(Address{Scope: ScopeTask, Owner: "z", Key: "k"}, ModeLatest, 1)
	s.Emit(Address{Scope: ScopeProcess, Key: "b"}, ModeLatest, 2)
	s.Emit(Address{Scope: ScopeProcess, Key: "a"}, ModeLatest, 3)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "process/a", snap[0].Address.String())
	assert.Equal(t, "process/b", snap[1].Address.String())
	assert.Equal(t, "task/z/k", snap[2].Address.String())
}
