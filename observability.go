package laco

import (
	"context"
	"time"
)

// Op identifies the pipeline a transition went through.
type Op string

const (
	OpSet     Op = "set"
	OpReplace Op = "replace"
	OpReset   Op = "reset"
	OpRestore Op = "restore"
)

// Transition describes a transition for observability hooks.
type Transition struct {
	StoreID   int
	StoreName string
	Op        Op
	Label     string
}

// Outcome is the result of a transition.
type Outcome struct {
	// Committed is true when the registry was written.
	Committed bool
	// Vetoed is true when a middleware declined. A forced reset can be both
	// vetoed and committed.
	Vetoed bool
	// Changes is the changed-field set handed to listeners.
	Changes Changes
	// Notified is the number of listeners invoked.
	Notified int
}

// Observability receives transition lifecycle hooks. Implementations must not
// affect the transition; see the otel and prom packages.
type Observability interface {
	// OnTransitionStart is called before the current value is read.
	OnTransitionStart(ctx context.Context, tr Transition) context.Context
	// OnTransitionComplete is called after notification, or right after a
	// veto.
	OnTransitionComplete(ctx context.Context, tr Transition, outcome Outcome, duration time.Duration)
}
