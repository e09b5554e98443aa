// Package laco is an in-process reactive state container.
//
// A Store holds one typed value in a Registry. Values are changed through
// transitions that run a vetoable middleware chain and then notify the
// listeners interested in the fields that changed.
//
// # Stores
//
//	type Counter struct {
//	    Count int `json:"count"`
//	}
//
//	counter := laco.New(Counter{}, laco.WithName("Counter"))
//	counter.Set(func(c *Counter) { c.Count++ }, "Increment")
//	counter.Get().Count // 1
//
// Set hands the mutation a private draft of the current value and computes
// the top-level fields that changed. Replace swaps the whole value. Reset
// goes back to the value the store was created with.
//
// # Middleware
//
// Middleware runs before a transition is committed. It sees the tentative
// value, a draft it may edit and the transition label, and returns Continue,
// Veto or Edit:
//
//	counter.AddMiddleware(laco.Guard(func(c Counter, action string) bool {
//	    return !(c.Count < 0 && action == "Decrement")
//	}))
//
// A veto aborts the transition: the registry keeps its value and no listener
// runs.
//
// # Listeners
//
//	unsubscribe := counter.Subscribe(func(state, old Counter, changes laco.Changes) {
//	    log.Println("count is now", state.Count)
//	}, "count")
//	defer unsubscribe()
//
// Field names are json tag names when present; fields tagged "-" are never
// reported. Listeners run synchronously, in registration order, after the
// commit. A Set that changes nothing notifies nobody; a Replace notifies
// everybody.
//
// # Timeline bridge
//
// A Bridge attached to the registry receives every committed transition with
// the full snapshot and may send jump requests back, which are replayed
// through Replace. See the devtools package for a recorder and a websocket
// client.
//
// # Concurrency
//
// Transitions on one store are serialized. Listeners run after the store
// lock is released, so they may start nested transitions. A transition that
// middleware starts on its own store is queued and runs on the same
// goroutine once the current one has finished.
package laco
