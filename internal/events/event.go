// Package events provides small generic pub/sub primitives used to push
// session views and sensor status to observers.
package events

import "sync"

// registry holds the listeners and the optional replay value shared by
// ChannelEvent and CallbackEvent. L is the listener type.
type registry[T any, L any] struct {
	mu        sync.RWMutex
	listeners map[uint64]L
	nextID    uint64
	replay    bool
	last      T
	hasLast   bool
}

func (r *registry[T, L]) init(replay bool) {
	r.listeners = make(map[uint64]L)
	r.replay = replay
}

// add stores a listener and returns its id plus the value to replay, if any
func (r *registry[T, L]) add(listener L) (id uint64, last T, sendLast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id = r.nextID
	r.nextID++
	r.listeners[id] = listener
	return id, r.last, r.replay && r.hasLast
}

func (r *registry[T, L]) remove(id uint64) {
	r.mu.Lock()
	delete(r.listeners, id)
	r.mu.Unlock()
}

// snapshot records value for replay and returns a copy of the listeners,
// so that delivery can happen outside the lock
func (r *registry[T, L]) snapshot(value T) []L {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replay {
		r.last = value
		r.hasLast = true
	}
	out := make([]L, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

func (r *registry[T, L]) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// ChannelEvent fans values out to registered channels. Sends never block:
// a listener whose channel is full misses that value.
type ChannelEvent[T any] struct {
	reg registry[T, chan<- T]
}

// NewChannelEvent creates a ChannelEvent. With replay set, a new listener
// immediately receives the most recent value if one was ever sent.
func NewChannelEvent[T any](replay bool) *ChannelEvent[T] {
	e := &ChannelEvent[T]{}
	e.reg.init(replay)
	return e
}

// Listen registers ch and returns a function that removes it again
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}
	id, last, sendLast := e.reg.add(ch)
	if sendLast {
		select {
		case ch <- last:
		default:
		}
	}
	return func() { e.reg.remove(id) }
}

// Notify sends value to every registered channel
func (e *ChannelEvent[T]) Notify(value T) {
	for _, ch := range e.reg.snapshot(value) {
		select {
		case ch <- value:
		default:
		}
	}
}

// ListenerCount returns the number of registered channels
func (e *ChannelEvent[T]) ListenerCount() int {
	return e.reg.count()
}

// CallbackEvent calls registered functions synchronously on Notify
type CallbackEvent[T any] struct {
	reg registry[T, func(T)]
}

// NewCallbackEvent creates a CallbackEvent. With replay set, a new listener
// is called immediately with the most recent value if one was ever sent.
func NewCallbackEvent[T any](replay bool) *CallbackEvent[T] {
	e := &CallbackEvent[T]{}
	e.reg.init(replay)
	return e
}

// Listen registers callback and returns a function that removes it again.
// The callback must not block.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}
	id, last, sendLast := e.reg.add(callback)
	if sendLast {
		callback(last)
	}
	return func() { e.reg.remove(id) }
}

// Notify calls every registered callback with value
func (e *CallbackEvent[T]) Notify(value T) {
	for _, callback := range e.reg.snapshot(value) {
		callback(value)
	}
}

// ListenerCount returns the number of registered callbacks
func (e *CallbackEvent[T]) ListenerCount() int {
	return e.reg.count()
}
