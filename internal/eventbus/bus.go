// Package eventbus fans events out to subscriber channels without ever
// blocking the publisher. A subscriber that cannot keep up loses events
// and the loss is counted.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("eventbus: bus is closed")
	ErrSubscriberExists   = errors.New("eventbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber not found")
	ErrNilChannel         = errors.New("eventbus: nil channel provided")
)

// SubscriberStats tracks delivery for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats is a snapshot of bus telemetry.
type Stats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}

type subscriber[E any] struct {
	ch      chan<- E
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes events of type E. The zero value is not usable; call New.
//
// Thread-safety: all methods are safe for concurrent use.
type Bus[E any] struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber[E]
	totalPublished atomic.Uint64
	closed         bool
}

// New creates an empty bus.
func New[E any]() *Bus[E] {
	return &Bus[E]{subscribers: make(map[string]*subscriber[E])}
}

// Subscribe registers ch under id. Events are sent without blocking: when
// ch is full the event is dropped for this subscriber only.
func (b *Bus[E]) Subscribe(id string, ch chan<- E) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber[E]{ch: ch}
	return nil
}

// Publish sends e to every subscriber. Never blocks.
func (b *Bus[E]) Publish(e E) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)
	for _, s := range b.subscribers {
		select {
		case s.ch <- e:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// Emit is Publish under the name event sinks use.
func (b *Bus[E]) Emit(e E) { b.Publish(e) }

// Unsubscribe removes a subscriber. Its channel is not closed.
func (b *Bus[E]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot of delivery counters.
func (b *Bus[E]) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		st.Subscribers[id] = SubscriberStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
	}
	return st
}

// Close stops delivery. Once Close returns no further event reaches any
// subscriber channel, so owners may close their channels. Idempotent.
func (b *Bus[E]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subscribers = nil
}
