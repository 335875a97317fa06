// Package broadcast holds scoped progress signals emitted while a process runs.
//
// A Store is not safe for concurrent use. The orchestrator owns one Store and
// is its only writer; tasks reach it by message passing.
package broadcast

import (
	"fmt"
	"reflect"
	"sort"
)

// Key identifies a signal. Keys are chosen by the application.
type Key string

// Scope controls who can observe a broadcast.
type Scope int

const (
	ScopeTask    Scope = iota // visible to the emitting task's run only
	ScopeProcess              // visible to the whole orchestrator and its observers
)

func (s Scope) String() string {
	switch s {
	case ScopeTask:
		return "task"
	case ScopeProcess:
		return "process"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Mode controls how a new value combines with the stored one.
type Mode int

const (
	ModeLatest Mode = iota // overwrite the stored value
	ModeAppend             // append to an ordered sequence
)

func (m Mode) String() string {
	switch m {
	case ModeLatest:
		return "latest"
	case ModeAppend:
		return "append"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// UpdateResult reports whether an applied update changed state.
type UpdateResult int

const (
	Unchanged UpdateResult = iota
	Changed
)

func (r UpdateResult) String() string {
	if r == Changed {
		return "changed"
	}
	return "unchanged"
}

// Value is the current content of one broadcast.
type Value struct {
	Mode   Mode
	Latest any   // set for ModeLatest
	Values []any // set for ModeAppend, in emission order
}

// Address locates a broadcast. Owner is empty for ScopeProcess.
type Address struct {
	Scope Scope
	Owner string
	Key   Key
}

func (a Address) String() string {
	if a.Scope == ScopeProcess {
		return fmt.Sprintf("process/%s", a.Key)
	}
	return fmt.Sprintf("task/%s/%s", a.Owner, a.Key)
}

// Store maps addresses to their current value.
type Store struct {
	values map[Address]*Value
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[Address]*Value)}
}

// Emit applies value at addr under mode.
// ModeLatest reports Changed only when the value differs from the stored one;
// ModeAppend always reports Changed. Switching the mode of an existing
// address replaces its content.
func (s *Store) Emit(addr Address, mode Mode, value any) UpdateResult {
	if addr.Scope == ScopeProcess {
		addr.Owner = ""
	}

	current, exists := s.values[addr]
	if !exists || current.Mode != mode {
		current = &Value{Mode: mode}
		s.values[addr] = current
		exists = false
	}

	switch mode {
	case ModeAppend:
		current.Values = append(current.Values, value)
		return Changed
	default:
		if exists && reflect.DeepEqual(current.Latest, value) {
			return Unchanged
		}
		current.Latest = value
		return Changed
	}
}

// Get returns a copy of the value stored at addr.
func (s *Store) Get(addr Address) (Value, bool) {
	if addr.Scope == ScopeProcess {
		addr.Owner = ""
	}
	v, ok := s.values[addr]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

// Snapshot returns a copy of every stored value, ordered by address.
func (s *Store) Snapshot() []Entry {
	entries := make([]Entry, 0, len(s.values))
	for addr, v := range s.values {
		entries = append(entries, Entry{Address: addr, Value: v.clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.String() < entries[j].Address.String()
	})
	return entries
}

// Entry is one element of a Snapshot.
type Entry struct {
	Address Address
	Value   Value
}

func (v *Value) clone() Value {
	cp := *v
	if v.Values != nil {
		cp.Values = append([]any(nil), v.Values...)
	}
	return cp
}
