package testutil

import (
	"sort"
	"sync"
	"time"
)

// ExecutionRecord holds the start and end times for a single unit's execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder is shared by test units to record when each of them ran.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	order   []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

func (r *Recorder) start(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = &ExecutionRecord{Start: time.Now()}
	r.order = append(r.order, id)
}

func (r *Recorder) end(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.End = time.Now()
	}
}

// Record returns the execution record of a unit.
func (r *Recorder) Record(id string) (ExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Ran reports whether the unit started.
func (r *Recorder) Ran(id string) bool {
	_, ok := r.Record(id)
	return ok
}

// Order returns unit ids in the order they started.
func (r *Recorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// IDs returns the ids of every unit that ran, sorted.
func (r *Recorder) IDs() []string {
	ids := r.Order()
	sort.Strings(ids)
	return ids
}
