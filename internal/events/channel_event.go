package events

import (
	"sync"
)

// listener is one registered channel. recv is set for latest-wins listeners,
// letting Notify evict a stale buffered value to make room for a newer one.
type listener[T any] struct {
	send chan<- T
	recv chan T
}

// deliver never blocks. A plain listener with a full buffer misses value; a
// latest-wins listener loses its oldest buffered value instead.
func (l listener[T]) deliver(value T) {
	select {
	case l.send <- value:
		return
	default:
	}
	if l.recv == nil {
		return
	}
	select {
	case <-l.recv:
	default:
	}
	select {
	case l.send <- value:
	default:
	}
}

// ChannelEvent fans values out to listener channels without ever blocking
// the publisher.
type ChannelEvent[T any] struct {
	mu        sync.RWMutex
	listeners map[uint64]listener[T]
	nextID    uint64
	sticky    bool
	last      T
	has       bool
}

// NewChannelEvent creates a ChannelEvent. When sticky is true the most recent
// value is remembered and handed to each new listener as it registers.
func NewChannelEvent[T any](sticky bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		listeners: make(map[uint64]listener[T]),
		sticky:    sticky,
	}
}

// Listen registers ch. Values published while its buffer is full are skipped,
// which suits streams where every value is a separate fact.
// Returns a deregistration function that can be called to remove the listener
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	return e.register(listener[T]{send: ch})
}

// ListenLatest registers ch for state that only matters in its newest form:
// when the buffer is full the oldest pending value is dropped, so the last
// value a reader drains is always the last one published.
// Returns a deregistration function that can be called to remove the listener
func (e *ChannelEvent[T]) ListenLatest(ch chan T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	return e.register(listener[T]{send: ch, recv: ch})
}

func (e *ChannelEvent[T]) register(l listener[T]) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	replay, last := e.sticky && e.has, e.last
	e.mu.Unlock()

	if replay {
		l.deliver(last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Notify delivers value to every registered channel.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.sticky {
		e.last = value
		e.has = true
	}
	targets := make([]listener[T], 0, len(e.listeners))
	for _, l := range e.listeners {
		targets = append(targets, l)
	}
	e.mu.Unlock()

	for _, l := range targets {
		l.deliver(value)
	}
}

// Latest returns the remembered value of a sticky event.
func (e *ChannelEvent[T]) Latest() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.has
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
