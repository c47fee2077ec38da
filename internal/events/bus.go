package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 256

// Publisher is implemented by anything that accepts events
type Publisher interface {
	Publish(event Event)
}

// Ensure Bus implements Publisher
var _ Publisher = (*Bus)(nil)

type subscription struct {
	ch    chan Event
	types map[EventType]struct{} // empty: all types
}

func (s *subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus is a pub/sub event bus for pipeline events
type Bus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]*subscription
	bufferSize  int
	dropped     atomic.Uint64
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[<-chan Event]*subscription),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe returns a channel that receives events of the given types,
// or of every type when none are given
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		ch:    make(chan Event, b.bufferSize),
		types: make(map[EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
	b.subscribers[sub.ch] = sub
	return sub.ch
}

// Unsubscribe removes a subscriber channel and closes it
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(sub.ch)
	}
}

// Publish sends an event to all interested subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for
// that subscriber and counted in Dropped. Monitor ticks must never stall on
// a slow websocket client.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events dropped because a subscriber was full
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, key)
	}
}
