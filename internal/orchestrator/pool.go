package orchestrator

import (
	"sort"

	"github.com/aristath/firepipe/internal/process"
)

// ResourcePool tracks units held against a fixed capacity per resource.
// Multi-resource requirements are acquired all or nothing, so a task never
// holds part of its requirement while waiting for the rest.
//
// ResourcePool is not safe for concurrent use; the orchestrator loop is its
// only user.
type ResourcePool struct {
	capacity process.Resources
	held     map[*process.Resource]int
}

// NewResourcePool creates a pool with the given capacities.
func NewResourcePool(capacity process.Resources) *ResourcePool {
	return &ResourcePool{
		capacity: capacity.Clone(),
		held:     make(map[*process.Resource]int),
	}
}

// Capacity returns the declared capacity of r and whether r is declared.
func (p *ResourcePool) Capacity(r *process.Resource) (int, bool) {
	n, ok := p.capacity[r]
	return n, ok
}

// Held returns the units of r currently acquired.
func (p *ResourcePool) Held(r *process.Resource) int {
	return p.held[r]
}

// Available returns the units of r that can still be acquired.
func (p *ResourcePool) Available(r *process.Resource) int {
	return p.capacity[r] - p.held[r]
}

// Shortfall returns the resources of req that cannot currently be satisfied,
// sorted by name. An empty result means req is admissible.
func (p *ResourcePool) Shortfall(req process.Resources) []*process.Resource {
	var short []*process.Resource
	for _, r := range sortedResources(req) {
		if n := req[r]; n > 0 && n > p.Available(r) {
			short = append(short, r)
		}
	}
	return short
}

// Acquire takes every unit of req, or nothing if any resource falls short.
func (p *ResourcePool) Acquire(req process.Resources) bool {
	if len(p.Shortfall(req)) > 0 {
		return false
	}
	for _, r := range sortedResources(req) {
		if n := req[r]; n > 0 {
			p.held[r] += n
		}
	}
	return true
}

// Release returns every unit of req to the pool. Releasing more than held
// clamps at zero.
func (p *ResourcePool) Release(req process.Resources) {
	sorted := sortedResources(req)
	for i := len(sorted) - 1; i >= 0; i-- {
		r := sorted[i]
		n := req[r]
		if n <= 0 {
			continue
		}
		if p.held[r] <= n {
			delete(p.held, r)
			continue
		}
		p.held[r] -= n
	}
}

// Validate checks that req can ever be satisfied by this pool.
func (p *ResourcePool) Validate(task string, req process.Resources) error {
	for _, r := range sortedResources(req) {
		n := req[r]
		capacity, declared := p.capacity[r]
		if !declared || n < 0 || n > capacity {
			return &ResourceError{
				Task:     task,
				Resource: r.Name(),
				Required: n,
				Capacity: capacity,
				Declared: declared,
			}
		}
	}
	return nil
}

// sortedResources returns the keys of rs ordered by name.
func sortedResources(rs process.Resources) []*process.Resource {
	if len(rs) == 0 {
		return nil
	}
	sorted := make([]*process.Resource, 0, len(rs))
	for r := range rs {
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})
	return sorted
}
