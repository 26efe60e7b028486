package core

import (
	"context"
	"sync"
)

// EventKind names the trigger categories the coordinator reacts to.
type EventKind int

const (
	// EventSourceDeleted: a source was deleted with its cascade; ItemIDs
	// carries the item ids it owned. Multi-source deletes emit one event
	// per source.
	EventSourceDeleted EventKind = iota
	// EventItemDeleted: a single playlist item was deleted.
	EventItemDeleted
	// EventQueueAdded: a batch of entries entered the queue; ItemIDs
	// carries the added entry ids, ForeignKeys the distinct owning source
	// ids per kind.
	EventQueueAdded
	// EventQueueRemoved: one or more entries left the queue; ItemIDs
	// carries the removed entry ids.
	EventQueueRemoved
	// EventQueueCleared: the whole queue was emptied.
	EventQueueCleared
)

// Event is one committed change notification. The snapshot it describes is
// already committed when the event is delivered; reactions read the latest
// snapshot, never a captured one.
type Event struct {
	Kind     EventKind
	Source   SourceKind
	SourceID string
	ItemIDs  []string
	// ForeignKeys maps source kind to the distinct foreign keys touched by
	// a queue addition.
	ForeignKeys map[SourceKind][]string
	// Duplicates counts enqueue candidates dropped by snippet dedup.
	Duplicates int
}

// Bus is an in-process broadcast of committed mutation events. Each
// subscription gets its own unbounded ordered queue, so a publisher never
// blocks on a slow subscriber and a reaction that publishes follow-up
// events cannot deadlock the pipeline.
//
// The bus tracks in-flight deliveries: an event is pending from publish
// until the subscriber acknowledges it. Quiesce waits for the pending count
// to reach zero, which is the fixed point of a mutation and all its
// cascading reactions.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	subs    []*Subscription
	pending int
	closed  bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Subscription is one subscriber's view of the bus, filtered by event kind.
type Subscription struct {
	bus   *Bus
	kinds map[EventKind]struct{}
	queue []Event
}

// Subscribe registers a subscriber for the given event kinds.
func (b *Bus) Subscribe(kinds ...EventKind) *Subscription {
	s := &Subscription{bus: b, kinds: make(map[EventKind]struct{}, len(kinds))}
	for _, k := range kinds {
		s.kinds[k] = struct{}{}
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Publish delivers the event to every matching subscription.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if _, ok := s.kinds[ev.Kind]; ok {
			s.queue = append(s.queue, ev)
			b.pending++
		}
	}
	b.cond.Broadcast()
}

// Next blocks until an event is available or the context is cancelled.
// The caller must Ack after fully handling the event, including any
// follow-up mutations it dispatched.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	b := s.bus

	// Wake the waiter when the context dies; Cond has no native timeout.
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(s.queue) == 0 {
		if b.closed || ctx.Err() != nil {
			return Event{}, false
		}
		b.cond.Wait()
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Ack marks one previously taken event as fully handled.
func (s *Subscription) Ack() {
	b := s.bus
	b.mu.Lock()
	b.pending--
	if b.pending == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// Quiesce blocks until no delivery is in flight: every published event has
// been taken and acknowledged, including events born from reactions. Used
// by callers that need to observe the consistent fixed point.
func (b *Bus) Quiesce(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.pending > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	return nil
}

// Close wakes all blocked subscribers; subsequent publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
