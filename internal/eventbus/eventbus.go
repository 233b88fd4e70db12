// Package eventbus implements a small typed pub/sub connecting
// adapters to the rest of the engine. Each adapter owns one producer
// channel (internal/adapter.Base); the bus fans every event it reads
// out to every current subscriber.
package eventbus

import (
	"context"
	"sync"

	"github.com/iff-guardian/fusion/internal/domain"
)

// Bus fans out domain.Event values from N producers to M subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan domain.Event
	nextID      int
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan domain.Event)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered; a slow subscriber
// drops events rather than blocking the bus.
func (b *Bus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, buffer)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// publish fans ev out to every current subscriber, dropping it for
// any subscriber whose channel is full.
func (b *Bus) publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Pump reads from source until ctx is canceled or source closes,
// publishing every event it reads to the bus. One Pump runs per
// registered adapter, started by the Integration Registry when an
// adapter is constructed.
func (b *Bus) Pump(ctx context.Context, source <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source:
			if !ok {
				return
			}
			b.publish(ev)
		}
	}
}
