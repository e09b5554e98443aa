package laco

import "slices"

// ResultKind tags the decision of a middleware.
type ResultKind int

const (
	// ResultContinue lets the transition proceed.
	ResultContinue ResultKind = iota
	// ResultVeto aborts the transition.
	ResultVeto
	// ResultEdit applies further edits to the draft, then proceeds.
	ResultEdit
)

func (k ResultKind) String() string {
	switch k {
	case ResultContinue:
		return "continue"
	case ResultVeto:
		return "veto"
	case ResultEdit:
		return "edit"
	default:
		return "unknown"
	}
}

// Result is the decision returned by a middleware.
type Result[T any] struct {
	Kind ResultKind
	edit func(draft *T)
}

// Continue lets the transition proceed.
func Continue[T any]() Result[T] {
	return Result[T]{Kind: ResultContinue}
}

// Veto aborts the transition. Nothing is committed and no listener runs.
func Veto[T any]() Result[T] {
	return Result[T]{Kind: ResultVeto}
}

// Edit applies edit to the draft and lets the transition proceed. Edits
// made by edit are added to the changed-field set.
func Edit[T any](edit func(draft *T)) Result[T] {
	return Result[T]{Kind: ResultEdit, edit: edit}
}

// Middleware guards a transition. state is the tentative value before any
// middleware edit, draft is the mutable copy that will be committed and
// action is the label given to the transition (ResetAction for Reset).
//
// A middleware may edit draft directly or through Edit. A Set, Replace or
// Reset it starts on its own store is queued and runs on the same goroutine
// once the current transition has finished; that nested call returns false.
type Middleware[T any] func(state T, draft *T, action string) Result[T]

// Guard adapts a predicate to a Middleware. A false return vetoes.
func Guard[T any](allow func(state T, action string) bool) Middleware[T] {
	return func(state T, _ *T, action string) Result[T] {
		if allow(state, action) {
			return Continue[T]()
		}
		return Veto[T]()
	}
}

type middlewareEntry[T any] struct {
	fn     Middleware[T]
	id     uintptr
	fields []string
}

func (e *middlewareEntry[T]) interested(changes Changes) bool {
	return len(e.fields) == 0 || changes.Intersects(e.fields)
}

// AddMiddleware appends fn to the chain. When fields are given, fn only runs
// for transitions that touch at least one of them. Middleware runs in the
// order it was added. The returned func removes exactly this registration.
func (s *Store[T]) AddMiddleware(fn Middleware[T], fields ...string) (remove func()) {
	if fn == nil {
		return func() {}
	}
	entry := &middlewareEntry[T]{fn: fn, id: funcID(fn), fields: fields}

	s.hooksMu.Lock()
	s.middleware = append(s.middleware, entry)
	s.hooksMu.Unlock()

	return func() {
		s.hooksMu.Lock()
		defer s.hooksMu.Unlock()
		s.middleware = slices.DeleteFunc(s.middleware, func(e *middlewareEntry[T]) bool {
			return e == entry
		})
	}
}

// RemoveMiddleware removes every registration of fn. Removing a function
// that was never added is a no-op.
func (s *Store[T]) RemoveMiddleware(fn Middleware[T]) {
	id := funcID(fn)

	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.middleware = slices.DeleteFunc(s.middleware, func(e *middlewareEntry[T]) bool {
		return e.id == id
	})
}

func (s *Store[T]) middlewareSnapshot() []*middlewareEntry[T] {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return slices.Clone(s.middleware)
}

// runMiddleware runs the chain over a draft of base. changes seeds the
// changed-field set used for interest filtering; it grows with every edit a
// middleware makes. On veto the partially edited draft is returned with
// ok false.
func (s *Store[T]) runMiddleware(base T, changes Changes, action string) (next T, all Changes, ok bool) {
	entries := s.middlewareSnapshot()
	if len(entries) == 0 {
		return base, changes, true
	}

	s.owner.Store(goroutineID())
	defer s.owner.Store(0)

	draft := Clone(base)
	all = changes
	for _, m := range entries {
		if !m.interested(all) {
			continue
		}

		res := m.fn(base, &draft, action)
		if res.Kind == ResultEdit && res.edit != nil {
			res.edit(&draft)
		}
		all = changes.union(Fields(Diff(base, draft)))

		if res.Kind == ResultVeto {
			return draft, all, false
		}
	}
	return draft, all, true
}
