package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind tells run-level transitions apart from unit-level ones.
type EventKind string

const (
	EventRun  EventKind = "run"
	EventUnit EventKind = "unit"
)

// Event is one state transition observed during a run. For run events Unit
// is empty and From/To are run states; for unit events they are unit
// statuses.
type Event struct {
	RunID     string    `json:"run_id"`
	Kind      EventKind `json:"kind"`
	Stage     int       `json:"stage"`
	Unit      string    `json:"unit,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Feed fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Feed struct {
	mutex   sync.Mutex
	subs    map[uint64]chan Event
	next    uint64
	replay  bool
	history []Event
	closed  bool
	dropped atomic.Uint64
}

// NewFeed returns a live feed. Subscribers only see events published after
// they subscribed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]chan Event)}
}

// newReplayFeed returns a feed that hands every new subscriber the events
// published so far before the live ones.
func newReplayFeed() *Feed {
	f := NewFeed()
	f.replay = true
	return f
}

// Subscribe registers a subscriber with room for buffer pending events. The
// returned function unsubscribes and closes the channel. On a closed feed
// the channel carries the replayed history, if any, and is already closed.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ch := make(chan Event, len(f.history)+max(buffer, 1))
	for _, ev := range f.history {
		ch <- ev
	}
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.next
	f.next++
	f.subs[id] = ch
	return ch, func() {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (f *Feed) Publish(ev Event) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.closed {
		return
	}
	if f.replay {
		f.history = append(f.history, ev)
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped.Add(1)
		}
	}
}

// Close ends the feed and closes every subscriber channel.
func (f *Feed) Close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}
