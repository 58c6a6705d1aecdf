package runstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/unit"
)

// Status is the lifecycle state of one unit within a run.
type Status int

const (
	// StatusPending means the unit has not been picked up yet.
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	// StatusSkipped means the unit was never started, either because the run
	// was cancelled first or because an upstream best-effort failure cut its
	// branch off.
	StatusSkipped
	// StatusCancelled means the unit was running when the run was cancelled
	// and returned within the grace period.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusSkipped:
		return "Skipped"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether no further transition can follow.
func (s Status) Terminal() bool {
	return s >= StatusCompleted
}

// Live reports whether the unit produced output that downstream units may
// consume.
func (s Status) Live() bool {
	return s == StatusCompleted
}

// Store is a thread-safe record of unit state for one run.
type Store struct {
	states  sync.Map // unit id -> Status
	outputs sync.Map // unit id -> unit.Outputs
	errors  sync.Map // unit id -> error
	handles sync.Map // unit id -> memory.Handle
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// SetStatus records the unit's status and returns the previous one.
func (s *Store) SetStatus(id string, status Status) Status {
	prev, loaded := s.states.Swap(id, status)
	if !loaded {
		return StatusPending
	}
	return prev.(Status)
}

// Status returns the unit's status, StatusPending if none was recorded.
func (s *Store) Status(id string) Status {
	status, ok := s.states.Load(id)
	if !ok {
		return StatusPending
	}
	return status.(Status)
}

// SetOutput records the outputs a unit produced.
func (s *Store) SetOutput(id string, out unit.Outputs) {
	s.outputs.Store(id, out)
}

// Output returns the recorded outputs, or nil.
func (s *Store) Output(id string) unit.Outputs {
	out, ok := s.outputs.Load(id)
	if !ok {
		return nil
	}
	return out.(unit.Outputs)
}

// DeleteOutput forgets the recorded outputs.
func (s *Store) DeleteOutput(id string) {
	s.outputs.Delete(id)
}

// SetError records why a unit failed.
func (s *Store) SetError(id string, err error) {
	s.errors.Store(id, err)
}

// Error returns the recorded error, or nil.
func (s *Store) Error(id string) error {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil
	}
	return err.(error)
}

// SetHandle records the memory handle holding the unit's encoded outputs.
func (s *Store) SetHandle(id string, h memory.Handle) {
	s.handles.Store(id, h)
}

// Handle returns the unit's memory handle.
func (s *Store) Handle(id string) (memory.Handle, bool) {
	h, ok := s.handles.Load(id)
	if !ok {
		return memory.Handle{}, false
	}
	return h.(memory.Handle), true
}

// TakeHandle removes and returns the unit's memory handle, so that exactly
// one caller frees it.
func (s *Store) TakeHandle(id string) (memory.Handle, bool) {
	h, ok := s.handles.LoadAndDelete(id)
	if !ok {
		return memory.Handle{}, false
	}
	return h.(memory.Handle), true
}

// Handles returns the ids of units that still hold a memory handle, sorted.
func (s *Store) Handles() []string {
	var ids []string
	s.handles.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Statuses returns a snapshot of every recorded status.
func (s *Store) Statuses() map[string]Status {
	out := make(map[string]Status)
	s.states.Range(func(k, v any) bool {
		out[k.(string)] = v.(Status)
		return true
	})
	return out
}
