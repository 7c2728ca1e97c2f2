package events

import "sync"

// Bus is a channel-based pub-sub stream of stage events. Publishing is
// non-blocking: a subscriber that falls behind its buffer loses events rather
// than stalling the scheduler.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan StageEvent
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every event published after the call.
// bufSize defaults to 256 when non-positive.
func (b *Bus) Subscribe(bufSize int) <-chan StageEvent {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan StageEvent, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to all subscribers.
func (b *Bus) Publish(event StageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than block the run.
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
