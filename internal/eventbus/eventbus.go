// Package eventbus implements the process-wide broadcast mechanism used by
// the Map Registry to announce maps_updated events (spec §4.1 step 4) to
// subscribers — chiefly the SSE Supervisor. It follows the Design Notes'
// "actor-style coordination" guidance: a single-consumer mailbox per
// subscriber, fed by a non-blocking broadcast so a slow subscriber cannot
// stall the Registry's writer.
package eventbus

import "sync"

// MapsUpdated carries the added/removed slug sets from one refresh cycle.
type MapsUpdated struct {
	Added   []string
	Removed []string
}

// Bus is a simple fan-out broadcaster: many Subscribe callers, one
// publisher (the Registry, after a refresh has been applied).
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan MapsUpdated
	next int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan MapsUpdated)}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function. The channel is buffered so a burst of refreshes
// does not block the publisher; Publish drops the event for subscribers
// whose buffer is full rather than blocking (best-effort, per §4.1: "notify
// the SSE Supervisor (best-effort; asynchronous)").
func (b *Bus) Subscribe() (<-chan MapsUpdated, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan MapsUpdated, 8)
	b.subs[id] = ch
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish broadcasts an event to every current subscriber, non-blocking.
func (b *Bus) Publish(event MapsUpdated) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber's buffer is full; drop rather than block the
			// Registry's single writer surface.
		}
	}
}
