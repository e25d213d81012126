// Package event fans approval lifecycle notifications out from a message
// queue to any number of live subscribers, such as SSE streams.
package event

import (
	"context"
	"sync"

	"github.com/viant/pausor/service/messaging"
)

// Subscription delivers matching events to a single consumer.
type Subscription[T any] struct {
	events    chan T
	filter    func(*T) bool
	closeOnce sync.Once
	remove    func()
}

// Events returns the subscription delivery channel; it is closed when the
// subscription ends.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Close detaches the subscription from the broadcaster.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(s.remove)
}

// Broadcaster consumes events from a queue and replicates each one to every
// active subscription whose filter accepts it.
type Broadcaster[T any] struct {
	queue       messaging.Queue[T]
	buffer      int
	mux         sync.Mutex
	subscribers map[*Subscription[T]]bool
}

// NewBroadcaster creates a broadcaster over the supplied queue.
func NewBroadcaster[T any](queue messaging.Queue[T]) *Broadcaster[T] {
	return &Broadcaster[T]{
		queue:       queue,
		buffer:      16,
		subscribers: make(map[*Subscription[T]]bool),
	}
}

// Subscribe registers a consumer; a nil filter matches every event.
func (b *Broadcaster[T]) Subscribe(filter func(*T) bool) *Subscription[T] {
	subscription := &Subscription[T]{
		events: make(chan T, b.buffer),
		filter: filter,
	}
	subscription.remove = func() {
		b.mux.Lock()
		defer b.mux.Unlock()
		if b.subscribers[subscription] {
			delete(b.subscribers, subscription)
			close(subscription.events)
		}
	}
	b.mux.Lock()
	b.subscribers[subscription] = true
	b.mux.Unlock()
	return subscription
}

// Run consumes the queue until ctx is cancelled, delivering each event to
// matching subscribers. Slow subscribers with a full buffer miss the event
// rather than stalling the loop.
func (b *Broadcaster[T]) Run(ctx context.Context) {
	for {
		message, err := b.queue.Consume(ctx)
		if err != nil {
			return
		}
		event := message.T()
		_ = message.Ack()
		b.dispatch(*event)
	}
}

func (b *Broadcaster[T]) dispatch(event T) {
	b.mux.Lock()
	defer b.mux.Unlock()
	for subscription := range b.subscribers {
		if subscription.filter != nil && !subscription.filter(&event) {
			continue
		}
		select {
		case subscription.events <- event:
		default:
		}
	}
}
