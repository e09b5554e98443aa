package laco

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Option configures a Store.
type Option func(*config)

type config struct {
	name        string
	registry    *Registry
	resetNotify bool
}

// WithName sets a human readable name. Named stores prefix bridge labels
// with "<name> - ".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithRegistry places the store in r instead of DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(c *config) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithResetNotify makes Reset notify listeners of the fields it changed.
// By default Reset is silent.
func WithResetNotify(enabled bool) Option {
	return func(c *config) {
		c.resetNotify = enabled
	}
}

// Store is a handle to one registry slot. It owns the middleware chain and
// listener list for that slot and exposes the mutation API; the value itself
// lives in the registry.
//
// Values returned by Get and passed to listeners are shared with the
// registry and must be treated as read-only.
type Store[T any] struct {
	id          int
	name        string
	registry    *Registry
	initial     T
	resetNotify bool

	// mu serializes transitions from the read of the current value through
	// commit. Listeners run after it is released.
	mu sync.Mutex

	// owner is the goroutine running this store's middleware, 0 otherwise.
	owner atomic.Int64

	// queued holds transitions started by middleware on this store. Guarded
	// by mu.
	queued []func()

	hooksMu    sync.RWMutex
	middleware []*middlewareEntry[T]
	listeners  []*listenerEntry[T]
}

// New creates a store seeded with initial and returns its handle.
func New[T any](initial T, opts ...Option) *Store[T] {
	cfg := &config{registry: DefaultRegistry}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Store[T]{
		name:        cfg.name,
		registry:    cfg.registry,
		initial:     initial,
		resetNotify: cfg.resetNotify,
	}
	s.id = s.registry.add(initial, s.restore)
	return s
}

// ID returns the registry id of the store.
func (s *Store[T]) ID() int {
	return s.id
}

// Name returns the store name, or "" for unnamed stores.
func (s *Store[T]) Name() string {
	return s.name
}

// Get returns the current value. It returns the zero value when the registry
// entry was cleared or holds a value of another type.
func (s *Store[T]) Get() T {
	v, ok := s.registry.load(s.id)
	if !ok {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero
	}
	return t
}

// Initial returns the value the store was created with.
func (s *Store[T]) Initial() T {
	return s.initial
}

// Dispatch forwards label, prefixed with the store name, to the bridge.
func (s *Store[T]) Dispatch(label string) {
	s.registry.send(s.label(label))
}

func (s *Store[T]) label(info string) string {
	if s.name == "" {
		return info
	}
	return s.name + " - " + info
}

// funcID identifies a func value by its closure record, so that two closures
// created from the same literal are distinct while every reference to one
// top-level function is the same.
func funcID[F any](fn F) uintptr {
	return *(*uintptr)(unsafe.Pointer(&fn))
}

// goroutineID parses the id of the calling goroutine from its stack header,
// "goroutine 42 [running]:".
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	field, _, _ = bytes.Cut(field, []byte(" "))
	id, err := strconv.ParseInt(string(field), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
