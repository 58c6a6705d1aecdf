package edge

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/blockgrid/internal/port"
)

// Stats is a snapshot of one channel's counters.
type Stats struct {
	Sent          uint64
	Delivered     uint64
	Dropped       uint64
	AdapterErrors uint64
	Expansions    uint64
	HighWater     int
	Capacity      int
}

// Channel is the runtime form of one edge. It is safe for one producer and
// one consumer running concurrently.
type Channel struct {
	name    string
	policy  Policy
	adapter Adapter

	mu       sync.Mutex
	changed  chan struct{}
	buf      []port.Value // arrival order
	capacity int

	// next is the lowest sequence number not yet delivered or retired.
	next    uint64
	retired map[uint64]struct{}
	// last is the most recently delivered value for timestamp and key order.
	last      port.Value
	delivered bool

	closed  bool
	skipped bool
	err     error
	stats   Stats
}

// NewChannel creates the channel for an edge. A nil adapter means identity.
func NewChannel(name string, policy Policy, adapter Adapter) *Channel {
	if adapter == nil {
		adapter = identityAdapter{}
	}
	capacity := max(policy.Capacity, 1)
	return &Channel{
		name:     name,
		policy:   policy,
		adapter:  adapter,
		changed:  make(chan struct{}),
		capacity: capacity,
		retired:  make(map[uint64]struct{}),
		stats:    Stats{Capacity: capacity},
	}
}

// Name returns the edge name the channel was created for.
func (c *Channel) Name() string { return c.name }

// Policy returns the channel's policy.
func (c *Channel) Policy() Policy { return c.policy }

// Send hands one value to the edge. Depending on the backpressure strategy
// it may block until the consumer frees space, drop a value, or grow the
// buffer. Cancellation is checked before any blocking wait.
func (c *Channel) Send(ctx context.Context, v port.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	if c.closed {
		return &EdgeError{Edge: c.name, Err: ErrChannelClosed}
	}
	c.stats.Sent++

	outs, err := c.adapter.Apply(v)
	if err != nil {
		c.stats.AdapterErrors++
		adapterErr := &AdapterError{Edge: c.name, Op: c.policy.Adapter.Op, Err: err}
		if c.policy.Mode == Lenient {
			c.dropLocked(v.Seq)
			return nil
		}
		c.abortLocked(adapterErr)
		return adapterErr
	}

	if !carriesSeq(outs, v.Seq) {
		c.retireLocked(v.Seq)
	}
	for _, out := range outs {
		if err := c.enqueueLocked(ctx, out, true); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the end of the producer's values, flushing any batch the
// adapter still holds.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.err != nil {
		return c.err
	}
	for _, v := range c.adapter.Flush() {
		if err := c.enqueueLocked(ctx, v, false); err != nil {
			return err
		}
	}
	c.closed = true
	c.signalLocked()
	return nil
}

// Skip closes the channel without values because its producer never ran
// to completion. Consumers see an empty, skipped edge.
func (c *Channel) Skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.skipped = true
	c.signalLocked()
}

// Skipped reports whether the producer side was skipped.
func (c *Channel) Skipped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// Abort fails the edge; pending and future Recv calls return err.
func (c *Channel) Abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked(&EdgeError{Edge: c.name, Err: err})
}

// Recv returns the next value in the order the policy mandates. It blocks
// while nothing can be delivered yet and the producer has not closed the
// channel. ok is false once the channel is closed and drained.
func (c *Channel) Recv(ctx context.Context) (v port.Value, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.err != nil {
			return port.Value{}, false, c.err
		}
		v, ok, err = c.popLocked()
		if ok || err != nil {
			return v, ok, err
		}
		if c.closed && len(c.buf) == 0 {
			return port.Value{}, false, nil
		}
		if err := ctx.Err(); err != nil {
			return port.Value{}, false, err
		}
		if err := c.waitLocked(ctx); err != nil {
			return port.Value{}, false, err
		}
	}
}

// Drain receives until the channel is closed and empty.
func (c *Channel) Drain(ctx context.Context) ([]port.Value, error) {
	var out []port.Value
	for {
		v, ok, err := c.Recv(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Len returns the number of buffered values.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Channel) enqueueLocked(ctx context.Context, v port.Value, checkLate bool) error {
	if checkLate && c.isLateLocked(v) {
		c.abortLocked(&EdgeError{Edge: c.name, Err: fmt.Errorf("%w: value seq %d arrived after delivery moved past it", ErrReorderBufferExhausted, v.Seq)})
		return nil
	}

	for len(c.buf) >= c.capacity {
		switch c.policy.Backpressure {
		case Block:
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.waitLocked(ctx); err != nil {
				return err
			}
			if c.err != nil {
				return c.err
			}
		case DropOldest:
			oldest := c.buf[0]
			c.buf = c.buf[1:]
			c.dropLocked(oldest.Seq)
		case DropNewest:
			c.dropLocked(v.Seq)
			return nil
		case Expand:
			if c.capacity < c.policy.MaxCapacity {
				c.capacity = min(c.capacity*2, c.policy.MaxCapacity)
				c.stats.Expansions++
				c.stats.Capacity = c.capacity
				continue
			}
			overflow := &EdgeError{Edge: c.name, Err: ErrBufferOverflow}
			if c.policy.Mode == Lenient {
				c.dropLocked(v.Seq)
				return nil
			}
			c.abortLocked(overflow)
			return overflow
		}
	}

	c.buf = append(c.buf, v)
	c.stats.HighWater = max(c.stats.HighWater, len(c.buf))
	c.signalLocked()
	return nil
}

func (c *Channel) popLocked() (port.Value, bool, error) {
	if len(c.buf) == 0 {
		return port.Value{}, false, nil
	}

	var idx int
	switch c.policy.Ordering {
	case TimestampOrder, KeyOrder:
		if !c.closed && len(c.buf) < c.capacity {
			return port.Value{}, false, nil
		}
		idx = c.minIndexLocked(c.orderLess)
	default:
		idx = c.minIndexLocked(func(a, b port.Value) bool { return a.Seq < b.Seq })
		lowest := c.buf[idx].Seq
		c.advanceLocked()
		if lowest != c.next && !c.closed {
			if len(c.buf) >= c.capacity {
				err := &EdgeError{Edge: c.name, Err: fmt.Errorf("%w: waiting for seq %d with %d values buffered", ErrReorderBufferExhausted, c.next, len(c.buf))}
				c.abortLocked(err)
				return port.Value{}, false, err
			}
			return port.Value{}, false, nil
		}
		if lowest >= c.next {
			c.next = lowest + 1
			c.advanceLocked()
		}
	}

	v := c.buf[idx]
	c.buf = append(c.buf[:idx], c.buf[idx+1:]...)
	c.last = v
	c.delivered = true
	c.stats.Delivered++
	c.signalLocked()
	return v, true, nil
}

// orderLess orders by timestamp or key, falling back to sequence.
func (c *Channel) orderLess(a, b port.Value) bool {
	switch c.policy.Ordering {
	case TimestampOrder:
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
	case KeyOrder:
		if a.Key != b.Key {
			return a.Key < b.Key
		}
	}
	return a.Seq < b.Seq
}

func (c *Channel) minIndexLocked(less func(a, b port.Value) bool) int {
	idx := 0
	for i := 1; i < len(c.buf); i++ {
		if less(c.buf[i], c.buf[idx]) {
			idx = i
		}
	}
	return idx
}

func (c *Channel) isLateLocked(v port.Value) bool {
	switch c.policy.Ordering {
	case TimestampOrder:
		return c.delivered && v.Timestamp.Before(c.last.Timestamp)
	case KeyOrder:
		return c.delivered && v.Key < c.last.Key
	default:
		return v.Seq < c.next
	}
}

// advanceLocked moves next past sequence numbers that will never arrive.
func (c *Channel) advanceLocked() {
	for {
		if _, ok := c.retired[c.next]; !ok {
			return
		}
		delete(c.retired, c.next)
		c.next++
	}
}

func (c *Channel) retireLocked(seq uint64) {
	if seq >= c.next {
		c.retired[seq] = struct{}{}
	}
}

func (c *Channel) dropLocked(seq uint64) {
	c.stats.Dropped++
	c.retireLocked(seq)
}

func (c *Channel) abortLocked(err error) {
	if c.err == nil {
		c.err = err
	}
	c.signalLocked()
}

func (c *Channel) signalLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// waitLocked releases the lock until the channel changes or ctx is done.
func (c *Channel) waitLocked(ctx context.Context) error {
	changed := c.changed
	c.mu.Unlock()
	defer c.mu.Lock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
		return nil
	}
}

func carriesSeq(vals []port.Value, seq uint64) bool {
	for _, v := range vals {
		if v.Seq == seq {
			return true
		}
	}
	return false
}
