package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Config lists the size classes of a Manager.
type Config struct {
	Classes []PoolConfig `validate:"required,min=1,dive"`
}

// DefaultConfig serves 1 KiB, 16 KiB and 1 MiB containers.
func DefaultConfig() Config {
	return Config{Classes: []PoolConfig{
		{BlockSize: 1 << 10, Blocks: 1024},
		{BlockSize: 16 << 10, Blocks: 256},
		{BlockSize: 1 << 20, Blocks: 16},
	}}
}

// Stats are the manager's running totals.
type Stats struct {
	AllocatedBytes uint64
	FreedBytes     uint64
	LiveBytes      int64
	LiveHandles    int
	GCRuns         uint64
	Collected      uint64
}

type entry struct {
	owner     string
	size      int
	length    int
	handedOff bool
	refs      int
}

// Manager allocates containers from its size-class pools and tracks their
// references. It is shared between runs and safe for concurrent use.
type Manager struct {
	mutex    sync.Mutex
	pools    []*Pool
	entries  map[Handle]*entry
	stats    Stats
	profiler *Profiler
}

// NewManager creates one pool per class, ordered by block size.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Classes) == 0 {
		return nil, errors.New("memory: at least one size class is required")
	}
	classes := make([]PoolConfig, len(cfg.Classes))
	copy(classes, cfg.Classes)
	sort.Slice(classes, func(i, j int) bool { return classes[i].BlockSize < classes[j].BlockSize })

	m := &Manager{entries: make(map[Handle]*entry)}
	for i, c := range classes {
		if c.BlockSize <= 0 || c.Blocks <= 0 {
			return nil, fmt.Errorf("memory: size class %d needs a positive block size and count", i)
		}
		if i > 0 && c.BlockSize == classes[i-1].BlockSize {
			return nil, fmt.Errorf("memory: duplicate size class of %d bytes", c.BlockSize)
		}
		// Class 0 is reserved so the zero Handle never matches a pool.
		m.pools = append(m.pools, NewPool(i+1, c))
	}
	m.profiler = newProfiler(m.pools)
	return m, nil
}

// Profiler returns the manager's observer.
func (m *Manager) Profiler() *Profiler { return m.profiler }

// Pools returns the pools in class order.
func (m *Manager) Pools() []*Pool { return m.pools }

func (m *Manager) pool(h Handle) (*Pool, error) {
	if h.Class < 1 || h.Class > len(m.pools) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return m.pools[h.Class-1], nil
}

// Allocate reserves a container of at least size bytes for owner from the
// smallest class that fits.
func (m *Manager) Allocate(owner string, size int) (Handle, error) {
	size = max(size, 0)
	var pool *Pool
	for _, p := range m.pools {
		if p.BlockSize() >= size {
			pool = p
			break
		}
	}
	if pool == nil {
		largest := m.pools[len(m.pools)-1]
		return Handle{}, fmt.Errorf("%w: %d bytes requested by '%s', largest class is %s", ErrTooLarge, size, owner, largest.Name())
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	h, err := pool.Allocate()
	if err != nil {
		m.profiler.exhausted(pool.class)
		return Handle{}, fmt.Errorf("allocating %d bytes for '%s': %w", size, owner, err)
	}
	m.entries[h] = &entry{owner: owner, size: size}
	m.stats.AllocatedBytes += uint64(size)
	m.stats.LiveBytes += int64(size)
	m.stats.LiveHandles++
	m.profiler.allocated(pool.class, owner, size)
	return h, nil
}

// Store writes data into the container. Only the owner writes, and only
// before Handoff.
func (m *Manager) Store(h Handle, data []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, block, err := m.lookupLocked(h)
	if err != nil {
		return err
	}
	if e.handedOff {
		return fmt.Errorf("%w: %s", ErrReadOnly, h)
	}
	if len(data) > len(block) {
		return fmt.Errorf("%w: %d bytes do not fit the %d byte block of %s", ErrTooLarge, len(data), len(block), h)
	}
	copy(block, data)
	e.length = len(data)
	return nil
}

// Load returns a copy of the stored contents.
func (m *Manager) Load(h Handle) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, block, err := m.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, e.length)
	copy(out, block[:e.length])
	return out, nil
}

// Handoff ends the owner's exclusive access and registers consumers
// references. A handle handed off to zero consumers is collectable at the
// next Collect.
func (m *Manager) Handoff(h Handle, consumers int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, _, err := m.lookupLocked(h)
	if err != nil {
		return err
	}
	if e.handedOff {
		return fmt.Errorf("%w: %s was already handed off", ErrReadOnly, h)
	}
	e.handedOff = true
	e.refs = max(consumers, 0)
	return nil
}

// Release drops one consumer reference after the consumer finished
// reading.
func (m *Manager) Release(h Handle) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, _, err := m.lookupLocked(h)
	if err != nil {
		return err
	}
	if !e.handedOff || e.refs == 0 {
		return fmt.Errorf("%w: %s", ErrNoReference, h)
	}
	e.refs--
	return nil
}

// Refs returns the outstanding consumer references of h.
func (m *Manager) Refs(h Handle) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, _, err := m.lookupLocked(h)
	if err != nil {
		return 0, err
	}
	return e.refs, nil
}

// Collect frees every handed-off handle without outstanding references and
// returns how many it freed.
func (m *Manager) Collect() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for h, e := range m.entries {
		if !e.handedOff || e.refs > 0 {
			continue
		}
		if err := m.freeLocked(h, e); err == nil {
			n++
		}
	}
	m.stats.GCRuns++
	m.stats.Collected += uint64(n)
	m.profiler.recordCollection(n)
	return n
}

// Free releases h immediately, whatever its references. It is meant for
// tearing down containers whose consumers will never run.
func (m *Manager) Free(h Handle) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, _, err := m.lookupLocked(h)
	if err != nil {
		return err
	}
	return m.freeLocked(h, e)
}

func (m *Manager) freeLocked(h Handle, e *entry) error {
	pool, err := m.pool(h)
	if err != nil {
		return err
	}
	if err := pool.Deallocate(h); err != nil {
		return err
	}
	delete(m.entries, h)
	m.stats.FreedBytes += uint64(e.size)
	m.stats.LiveBytes -= int64(e.size)
	m.stats.LiveHandles--
	m.profiler.deallocated(pool.class, e.size)
	return nil
}

// Stats returns the running totals.
func (m *Manager) Stats() Stats {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.stats
}

func (m *Manager) lookupLocked(h Handle) (*entry, []byte, error) {
	e, ok := m.entries[h]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	pool, err := m.pool(h)
	if err != nil {
		return nil, nil, err
	}
	block, err := pool.block(h)
	if err != nil {
		return nil, nil, err
	}
	return e, block, nil
}
