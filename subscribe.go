package laco

import "slices"

// Listener is notified after a committed transition with the new value, the
// value before the transition and the changed-field set.
type Listener[T any] func(state, old T, changes Changes)

type listenerEntry[T any] struct {
	fn     Listener[T]
	id     uintptr
	fields []string
}

func (e *listenerEntry[T]) interested(changes Changes) bool {
	return len(e.fields) == 0 || changes.Intersects(e.fields)
}

// Subscribe appends fn to the listener list. When fields are given, fn only
// runs for transitions that change at least one of them. The returned func
// removes exactly this subscription.
func (s *Store[T]) Subscribe(fn Listener[T], fields ...string) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	entry := &listenerEntry[T]{fn: fn, id: funcID(fn), fields: fields}

	s.hooksMu.Lock()
	s.listeners = append(s.listeners, entry)
	s.hooksMu.Unlock()

	return func() {
		s.hooksMu.Lock()
		defer s.hooksMu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(e *listenerEntry[T]) bool {
			return e == entry
		})
	}
}

// Unsubscribe removes every subscription of fn. Unknown functions are
// ignored.
func (s *Store[T]) Unsubscribe(fn Listener[T]) {
	id := funcID(fn)

	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(e *listenerEntry[T]) bool {
		return e.id == id
	})
}

// HasSubscribers reports whether any listener is registered.
func (s *Store[T]) HasSubscribers() bool {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return len(s.listeners) > 0
}

// notify runs listeners synchronously in registration order. With all set
// every listener runs regardless of its fields; otherwise an empty change set
// runs nothing. It returns the number of listeners invoked.
func (s *Store[T]) notify(state, old T, changes Changes, all bool) int {
	if !all && len(changes) == 0 {
		return 0
	}

	// Copy so listeners can subscribe or unsubscribe while we iterate.
	s.hooksMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.hooksMu.RUnlock()

	notified := 0
	for _, l := range listeners {
		if !all && !l.interested(changes) {
			continue
		}
		s.registry.invoke(s.id, func() {
			l.fn(state, old, changes)
		})
		notified++
	}
	return notified
}
