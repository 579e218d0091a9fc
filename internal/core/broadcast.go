// ABOUTME: Broadcaster fans out applied events to subscribers over bounded channels.
// ABOUTME: A slow subscriber gets a Lagged signal instead of silently missing events.
package core

import "sync"

// Envelope is what a subscriber receives: either a live Event, or a Lagged
// marker reporting how many events were dropped before this one.
type Envelope struct {
	Event  *Event
	Lagged int
}

type subscriber struct {
	id     uint64
	ch     chan Envelope
	lagged int
}

// Broadcaster fans out events to a set of bounded subscriber channels.
// Broadcast, Subscribe and Unsubscribe all take the same lock, since
// subscribers come and go from goroutines other than the owning actor's.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[uint64]*subscriber
	chanDepth int
}

// NewBroadcaster creates a Broadcaster whose subscriber channels are
// buffered to chanDepth entries.
func NewBroadcaster(chanDepth int) *Broadcaster {
	if chanDepth < 1 {
		chanDepth = 1
	}
	return &Broadcaster{subs: make(map[uint64]*subscriber), chanDepth: chanDepth}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe handle.
func (b *Broadcaster) Subscribe() (<-chan Envelope, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{id: id, ch: make(chan Envelope, b.chanDepth)}
	b.subs[id] = sub
	return sub.ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Broadcast delivers ev to every subscriber. A subscriber whose channel is
// full accumulates a lag counter instead of blocking or being dropped
// silently; the counter is flushed as a single Lagged envelope by the first
// later Broadcast call that finds a free slot in its channel, before ev (or
// any later event) resumes flowing to it.
func (b *Broadcaster) Broadcast(ev *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.lagged > 0 {
			select {
			case sub.ch <- Envelope{Lagged: sub.lagged}:
				sub.lagged = 0
			default:
				sub.lagged++
				continue
			}
		}
		select {
		case sub.ch <- Envelope{Event: ev}:
		default:
			sub.lagged++
		}
	}
}

// Close closes every subscriber channel. Used on actor shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
