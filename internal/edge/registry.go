package edge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// MapFunc is a pure value transformation usable by map adapters.
type MapFunc func(cty.Value) (cty.Value, error)

// FilterFunc is a pure predicate usable by filter adapters.
type FilterFunc func(cty.Value) (bool, error)

// Registry holds the named functions that map and filter adapters refer to.
// One registry is shared by every edge of a run through its ExecutionContext.
type Registry struct {
	mu      sync.RWMutex
	maps    map[string]MapFunc
	filters map[string]FilterFunc
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		maps:    make(map[string]MapFunc),
		filters: make(map[string]FilterFunc),
	}
}

// RegisterMap adds a map function. Registering a name twice is a
// programming error and panics.
func (r *Registry) RegisterMap(name string, fn MapFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.maps[name]; exists {
		panic(fmt.Sprintf("map adapter '%s' already registered", name))
	}
	r.maps[name] = fn
}

// RegisterFilter adds a filter function. Registering a name twice panics.
func (r *Registry) RegisterFilter(name string, fn FilterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.filters[name]; exists {
		panic(fmt.Sprintf("filter adapter '%s' already registered", name))
	}
	r.filters[name] = fn
}

// Names returns the registered map and filter names, sorted.
func (r *Registry) Names() (maps, filters []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name := range r.maps {
		maps = append(maps, name)
	}
	for name := range r.filters {
		filters = append(filters, name)
	}
	sort.Strings(maps)
	sort.Strings(filters)
	return maps, filters
}

// Resolve checks that every function an AdapterSpec names is registered.
func (r *Registry) Resolve(spec AdapterSpec) error {
	_, err := r.Build(spec)
	return err
}

// Build instantiates a fresh adapter for one edge. A nil registry only
// supports adapters that need no named function.
func (r *Registry) Build(spec AdapterSpec) (Adapter, error) {
	switch spec.Op {
	case OpIdentity:
		return identityAdapter{}, nil
	case OpBuffer:
		return &bufferAdapter{size: spec.Size}, nil
	case OpWindow:
		step := spec.Step
		if step == 0 {
			step = 1
		}
		return &windowAdapter{size: spec.Size, step: step}, nil
	}

	if r == nil {
		return nil, fmt.Errorf("%w: %s '%s'", ErrUnknownAdapter, spec.Op, spec.Func)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch spec.Op {
	case OpMap:
		if fn, ok := r.maps[spec.Func]; ok {
			return mapAdapter{fn: fn}, nil
		}
	case OpFilter:
		if fn, ok := r.filters[spec.Func]; ok {
			return filterAdapter{fn: fn}, nil
		}
	default:
		return nil, fmt.Errorf("%w: unsupported op %s", ErrInvalidPolicy, spec.Op)
	}
	return nil, fmt.Errorf("%w: %s '%s'", ErrUnknownAdapter, spec.Op, spec.Func)
}
