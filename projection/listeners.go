// Package projection builds the local views of the session from fetched
// snapshots and observed events.
// Handles ordering, deduplication, and reconciliation.
// Does not emit events or interact with UI directly.
package projection

import "sync"

// Listeners is the publish side of a store. Readers subscribe and receive a
// copy of the state after every mutation. The zero value is ready to use.
//
// Every mutation takes a sequence number with Stamp while it still holds the
// store lock, then calls Notify once the lock is released. Values are handed
// to listeners one at a time in sequence order, so the last value a listener
// sees is always the current state of the store.
type Listeners[T any] struct {
	mu         sync.Mutex
	nextID     int
	fns        map[int]func(T)
	stamped    uint64
	delivered  uint64
	pending    map[uint64]T
	delivering bool
}

func (l *Listeners[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// Stamp reserves the next sequence number. Each stamp must be followed by
// exactly one Notify with it.
func (l *Listeners[T]) Stamp() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamped++
	return l.stamped
}

// Notify must be called without holding the store lock, listeners are
// free to read the store back or mutate it. A value stamped earlier but not
// notified yet holds back the later ones, whoever notifies it delivers them.
func (l *Listeners[T]) Notify(seq uint64, v T) {
	l.mu.Lock()
	if l.pending == nil {
		l.pending = make(map[uint64]T)
	}
	l.pending[seq] = v
	if l.delivering {
		l.mu.Unlock()
		return
	}
	l.delivering = true

	for {
		next, ok := l.pending[l.delivered+1]
		if !ok {
			l.delivering = false
			l.mu.Unlock()
			return
		}
		delete(l.pending, l.delivered+1)
		l.delivered++
		fns := make([]func(T), 0, len(l.fns))
		for _, fn := range l.fns {
			fns = append(fns, fn)
		}
		l.mu.Unlock()

		l.call(fns, next)
		l.mu.Lock()
	}
}

// call releases the delivery slot if a listener panics.
func (l *Listeners[T]) call(fns []func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			l.delivering = false
			l.mu.Unlock()
			panic(r)
		}
	}()
	for _, fn := range fns {
		fn(v)
	}
}

// Emit stamps and notifies in one call, for values that are not tied to a
// store lock.
func (l *Listeners[T]) Emit(v T) {
	l.Notify(l.Stamp(), v)
}
