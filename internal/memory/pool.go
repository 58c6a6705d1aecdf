package memory

import (
	"fmt"
	"sync"
)

// Handle addresses one block. The zero Handle is never valid.
type Handle struct {
	Class int
	Index uint32
	Gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	return fmt.Sprintf("h%d:%d@%d", h.Class, h.Index, h.Gen)
}

// PoolConfig sizes one pool.
type PoolConfig struct {
	BlockSize int `validate:"gt=0"`
	Blocks    int `validate:"gt=0"`
}

type slot struct {
	gen  uint32
	used bool
	data []byte
}

// Pool is a fixed-capacity arena of equally sized blocks. Block storage is
// created on first use and kept for reuse. Allocate and Deallocate are
// atomic.
type Pool struct {
	mutex     sync.Mutex
	name      string
	class     int
	blockSize int
	slots     []slot
	free      []uint32
}

// NewPool creates a pool of cfg.Blocks blocks of cfg.BlockSize bytes. class
// is stamped into every handle so handles from other pools are rejected.
func NewPool(class int, cfg PoolConfig) *Pool {
	p := &Pool{
		name:      poolName(cfg.BlockSize),
		class:     class,
		blockSize: cfg.BlockSize,
		slots:     make([]slot, cfg.Blocks),
		free:      make([]uint32, cfg.Blocks),
	}
	// Pop order hands out low indexes first.
	for i := range p.free {
		p.free[i] = uint32(cfg.Blocks - 1 - i)
	}
	return p
}

func poolName(blockSize int) string {
	switch {
	case blockSize >= 1<<20 && blockSize%(1<<20) == 0:
		return fmt.Sprintf("%dMiB", blockSize>>20)
	case blockSize >= 1<<10 && blockSize%(1<<10) == 0:
		return fmt.Sprintf("%dKiB", blockSize>>10)
	default:
		return fmt.Sprintf("%dB", blockSize)
	}
}

// Name identifies the pool by its block size, e.g. "16KiB".
func (p *Pool) Name() string { return p.name }

// BlockSize returns the size of every block.
func (p *Pool) BlockSize() int { return p.blockSize }

// Capacity returns the number of blocks.
func (p *Pool) Capacity() int { return len(p.slots) }

// Live returns the number of allocated blocks.
func (p *Pool) Live() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.slots) - len(p.free)
}

// Allocate reserves a block.
func (p *Pool) Allocate() (Handle, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.free) == 0 {
		return Handle{}, fmt.Errorf("%w: all %d blocks of %s in use", ErrPoolExhausted, len(p.slots), p.name)
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	s := &p.slots[idx]
	s.used = true
	s.gen++
	if s.data == nil {
		s.data = make([]byte, p.blockSize)
	}
	return Handle{Class: p.class, Index: idx, Gen: s.gen}, nil
}

// Deallocate returns the block to the pool.
func (p *Pool) Deallocate(h Handle) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s, err := p.lookupLocked(h)
	if err != nil {
		return err
	}
	s.used = false
	clear(s.data)
	p.free = append(p.free, h.Index)
	return nil
}

// block returns the storage behind h. Callers must serialize access to a
// handle's contents themselves.
func (p *Pool) block(h Handle) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	s, err := p.lookupLocked(h)
	if err != nil {
		return nil, err
	}
	return s.data, nil
}

func (p *Pool) lookupLocked(h Handle) (*slot, error) {
	if h.Class != p.class || int(h.Index) >= len(p.slots) {
		return nil, fmt.Errorf("%w: %s does not belong to pool %s", ErrInvalidHandle, h, p.name)
	}
	s := &p.slots[h.Index]
	if !s.used || s.gen != h.Gen {
		return nil, fmt.Errorf("%w: %s is stale or freed", ErrInvalidHandle, h)
	}
	return s, nil
}
