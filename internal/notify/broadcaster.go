// Package notify provides a bounded publish/subscribe primitive used to signal
// state changes to readers without exposing mutable state.
package notify

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans out values to all current subscribers.
// Publish never blocks: a full subscriber queue evicts its oldest value.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscription is a bounded queue of published values.
type Subscription[T any] struct {
	id      uint64
	owner   *Broadcaster[T]
	ch      chan T
	mu      sync.Mutex
	closed  bool
	once    sync.Once
	dropped atomic.Uint64
}

// C returns the receive channel. It is closed after Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns how many values were evicted because the queue was full.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()

		s.owner.mu.Lock()
		delete(s.owner.subs, s.id)
		s.owner.mu.Unlock()
	})
}

// Subscribe registers a new subscriber with the given queue size (minimum 1).
func (b *Broadcaster[T]) Subscribe(buffer int) *Subscription[T] {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{
		id:    b.nextID,
		owner: b,
		ch:    make(chan T, buffer),
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers v to every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.RLock()
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(v)
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *Subscription[T]) deliver(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		// Queue full: evict the oldest value and retry.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}
