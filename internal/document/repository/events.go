package repository

import "sync"

// EventType classifies a change to the committed collection.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventCleared EventType = "cleared"
	// EventExternal reports a change written by another process.
	EventExternal EventType = "external"
)

// Event is broadcast after every change to the committed collection.
type Event struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"documentId,omitempty"`
	Version    int       `json:"version,omitempty"`
	Key        string    `json:"key,omitempty"`
}

const subscriberBuffer = 32

// Broadcaster fans events out to subscribers. A subscriber that falls behind
// loses events rather than blocking the store.
type Broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that releases it.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking. It reports how
// many subscribers dropped it.
func (b *Broadcaster) Publish(ev Event) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
