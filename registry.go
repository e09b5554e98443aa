package laco

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Logger is the logging interface used by the registry. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// PanicHandler is called when a listener panics during notification.
type PanicHandler func(storeID int, panicValue any)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// restorer decodes a snapshot entry for one store and replays it.
type restorer func(raw json.RawMessage, action string) error

// Registry maps store ids to their current value. It is the single owner of
// live state; stores read and write through it by id.
type Registry struct {
	mu        sync.RWMutex
	states    map[int]any
	counter   int
	restorers map[int]restorer

	bridgeMu sync.RWMutex
	bridge   Bridge

	logger        Logger
	observability Observability
	panicHandler  PanicHandler
}

// DefaultRegistry backs New and the package-level global state functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry whose ids start at 0.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		states:    make(map[int]any),
		restorers: make(map[int]restorer),
		logger:    slog.New(slog.DiscardHandler),
	}

	var bridge Bridge
	for _, opt := range opts {
		opt(r)
	}
	// WithBridge stores the bridge before attach so Init sees the final
	// configuration.
	if r.bridge != nil {
		bridge, r.bridge = r.bridge, nil
		if err := r.AttachBridge(bridge); err != nil {
			r.logger.Error("laco: bridge init failed", "error", err)
		}
	}
	return r
}

// WithLogger sets the logger used for bridge and restore failures.
func WithLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObservability installs transition hooks for tracing and metrics.
func WithObservability(obs Observability) RegistryOption {
	return func(r *Registry) {
		r.observability = obs
	}
}

// WithPanicHandler recovers listener panics and reports them to handler.
// Without it a panicking listener unwinds through Set or Replace.
func WithPanicHandler(handler PanicHandler) RegistryOption {
	return func(r *Registry) {
		r.panicHandler = handler
	}
}

// WithBridge attaches a timeline bridge when the registry is created.
func WithBridge(bridge Bridge) RegistryOption {
	return func(r *Registry) {
		r.bridge = bridge
	}
}

// add issues the next id and seeds it with initial.
func (r *Registry) add(initial any, restore restorer) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.counter
	r.counter++
	r.states[id] = initial
	if restore != nil {
		r.restorers[id] = restore
	}
	return id
}

func (r *Registry) load(id int) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.states[id]
	return v, ok
}

func (r *Registry) commit(id int, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = v
}

// State returns a copy of the id to value mapping.
func (r *Registry) State() map[int]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.states)
}

// Clear empties the mapping. Issued ids are not reused.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[int]any)
}

// ReplaceState overwrites the mapping wholesale.
func (r *Registry) ReplaceState(state map[int]any) {
	next := maps.Clone(state)
	if next == nil {
		next = make(map[int]any)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = next
}

// Dispatch forwards label to the bridge without touching any store.
func (r *Registry) Dispatch(label string) {
	r.send(label)
}

func (r *Registry) restorerIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := slices.Collect(maps.Keys(r.restorers))
	slices.Sort(ids)
	return ids
}

func (r *Registry) restorerFor(id int) restorer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restorers[id]
}

// invoke runs a listener, recovering panics when a handler is configured.
func (r *Registry) invoke(storeID int, fn func()) {
	if r.panicHandler != nil {
		defer func() {
			if p := recover(); p != nil {
				r.panicHandler(storeID, p)
			}
		}()
	}
	fn()
}

// GetGlobalState returns a copy of the default registry's mapping.
func GetGlobalState() map[int]any {
	return DefaultRegistry.State()
}

// ResetGlobalState clears the default registry.
func ResetGlobalState() {
	DefaultRegistry.Clear()
}

// ReplaceGlobalState overwrites the default registry's mapping.
func ReplaceGlobalState(state map[int]any) {
	DefaultRegistry.ReplaceState(state)
}
