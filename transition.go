package laco

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ResetAction is the action passed to middleware during Reset.
const ResetAction = "@@RESET"

// Set applies mutate to a draft of the current value and commits the result
// if no middleware vetoes. Listeners whose fields intersect the changed
// fields are notified; a mutation that changes nothing notifies nobody.
// label is optional and is passed to middleware and to the bridge.
//
// Set reports whether the transition was committed.
func (s *Store[T]) Set(mutate func(draft *T), label ...string) bool {
	return s.SetContext(context.Background(), mutate, label...)
}

// SetContext is Set with a context that is handed to the observability
// hooks.
func (s *Store[T]) SetContext(ctx context.Context, mutate func(draft *T), label ...string) bool {
	if s.reentrant() {
		s.queue(func() { s.SetContext(ctx, mutate, label...) })
		return false
	}

	tr := s.transition(OpSet, label)
	return s.run(ctx, tr, func() (Outcome, []func()) {
		st := s.apply(false, func(prev T) (T, Changes, bool) {
			v1, patches := Produce(prev, mutate)
			return s.runMiddleware(v1, Fields(patches), tr.Label)
		})
		if !st.outcome.Committed {
			return st.outcome, st.queued
		}

		s.registry.send(s.label(tr.Label))
		st.outcome.Notified = s.notify(st.next, st.prev, st.outcome.Changes, false)
		return st.outcome, st.queued
	})
}

// Replace swaps the whole value for fn(current). fn must not modify its
// argument. Middleware still runs over a draft of the new value and may
// edit or veto it. Every listener is notified after a commit, whatever
// fields it subscribed to, with all top-level fields reported as changed.
//
// Replace reports whether the transition was committed.
func (s *Store[T]) Replace(fn func(state T) T, label ...string) bool {
	return s.ReplaceContext(context.Background(), fn, label...)
}

// ReplaceContext is Replace with a context that is handed to the
// observability hooks.
func (s *Store[T]) ReplaceContext(ctx context.Context, fn func(state T) T, label ...string) bool {
	return s.replace(ctx, s.transition(OpReplace, label), fn, true)
}

func (s *Store[T]) replace(ctx context.Context, tr Transition, fn func(T) T, echo bool) bool {
	if s.reentrant() {
		s.queue(func() { s.replace(ctx, tr, fn, echo) })
		return false
	}

	return s.run(ctx, tr, func() (Outcome, []func()) {
		st := s.apply(false, func(prev T) (T, Changes, bool) {
			return s.runMiddleware(fn(prev), nil, tr.Label)
		})
		if !st.outcome.Committed {
			return st.outcome, st.queued
		}

		if echo {
			s.registry.send(s.label(tr.Label))
		}
		st.outcome.Changes = AllFields(st.next)
		st.outcome.Notified = s.notify(st.next, st.prev, st.outcome.Changes, true)
		return st.outcome, st.queued
	})
}

// Reset runs the middleware chain over the initial value with ResetAction
// and commits the result. A veto aborts the reset unless force is set, in
// which case the initial value, including any edits made by middleware
// before the veto, is committed anyway.
//
// Listeners are only notified when the store was created with
// WithResetNotify(true).
func (s *Store[T]) Reset(force ...bool) bool {
	if s.reentrant() {
		s.queue(func() { s.Reset(force...) })
		return false
	}

	forced := len(force) > 0 && force[0]
	tr := Transition{StoreID: s.id, StoreName: s.name, Op: OpReset, Label: ResetAction}
	return s.run(context.Background(), tr, func() (Outcome, []func()) {
		st := s.apply(forced, func(prev T) (T, Changes, bool) {
			return s.runMiddleware(s.initial, Fields(Diff(prev, s.initial)), ResetAction)
		})
		if !st.outcome.Committed {
			return st.outcome, st.queued
		}

		s.registry.send(s.label(ResetAction))
		st.outcome.Changes = Fields(Diff(st.prev, st.next))
		if s.resetNotify {
			st.outcome.Notified = s.notify(st.next, st.prev, st.outcome.Changes, false)
		}
		return st.outcome, st.queued
	})
}

// restore decodes a snapshot entry into T and replays it through the replace
// pipeline without echoing it back to the bridge. Fields tagged `json:"-"`
// keep their current value.
func (s *Store[T]) restore(raw json.RawMessage, action string) error {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: decode store %d: %w", ErrInvalidSnapshot, s.id, err)
	}
	tr := Transition{StoreID: s.id, StoreName: s.name, Op: OpRestore, Label: action}
	s.replace(context.Background(), tr, func(cur T) T { return carryIgnored(v, cur) }, false)
	return nil
}

// applied is the result of one locked step. queued holds the transitions
// middleware started on this store during it.
type applied[T any] struct {
	prev, next T
	outcome    Outcome
	queued     []func()
}

// apply holds the transition lock while step computes the next value from
// the current one, and commits it unless step vetoed and force is unset.
func (s *Store[T]) apply(force bool, step func(prev T) (T, Changes, bool)) (st applied[T]) {
	s.mu.Lock()
	defer func() {
		s.queued = nil
		s.mu.Unlock()
	}()

	st.prev = s.Get()
	next, changes, ok := step(st.prev)
	st.next = next
	st.queued = s.queued
	st.outcome.Changes = changes
	st.outcome.Vetoed = !ok
	if ok || force {
		s.registry.commit(s.id, next)
		st.outcome.Committed = true
	}
	return st
}

// run wraps one transition in the observability hooks. Transitions queued by
// middleware run once it has completed, in order, on the calling goroutine.
func (s *Store[T]) run(ctx context.Context, tr Transition, pipeline func() (Outcome, []func())) bool {
	committed, queued := s.observe(ctx, tr, pipeline)
	for _, fn := range queued {
		fn()
	}
	return committed
}

func (s *Store[T]) observe(ctx context.Context, tr Transition, pipeline func() (Outcome, []func())) (bool, []func()) {
	ctx, start := s.begin(ctx, tr)
	var outcome Outcome
	defer func() {
		s.end(ctx, tr, outcome, start)
	}()

	outcome, queued := pipeline()
	return outcome.Committed, queued
}

// reentrant reports whether the caller is this store's own middleware.
func (s *Store[T]) reentrant() bool {
	owner := s.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// queue must only be called from middleware, which holds mu.
func (s *Store[T]) queue(fn func()) {
	s.queued = append(s.queued, fn)
}

func (s *Store[T]) transition(op Op, label []string) Transition {
	tr := Transition{StoreID: s.id, StoreName: s.name, Op: op}
	if len(label) > 0 {
		tr.Label = label[0]
	}
	return tr
}

func (s *Store[T]) begin(ctx context.Context, tr Transition) (context.Context, time.Time) {
	if obs := s.registry.observability; obs != nil {
		ctx = obs.OnTransitionStart(ctx, tr)
	}
	return ctx, time.Now()
}

func (s *Store[T]) end(ctx context.Context, tr Transition, outcome Outcome, start time.Time) {
	if obs := s.registry.observability; obs != nil {
		obs.OnTransitionComplete(ctx, tr, outcome, time.Since(start))
	}
}
