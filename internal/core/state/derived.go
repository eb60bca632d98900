package state

import (
	"sync"

	"todostream/internal/core/errs"
)

// Deps collects dependency handles for Derive call sites.
func Deps(deps ...Dependency) []Dependency {
	return deps
}

// Derived is a read-only store computed from other stores. It holds only
// the memoized result of its computation; there is no Write.
type Derived[T any] struct {
	sc      *Scope
	id      int
	compute func() T

	valMu  sync.RWMutex
	value  T
	equals func(a, b T) bool

	lisMu     sync.Mutex
	listeners map[int]func(T)
	nextLis   int
}

// Derive creates a derived store over the declared dependencies. The
// computation runs once at construction and again during any propagation
// pass in which at least one declared dependency changed, at most once per
// pass. Reading an undeclared store inside compute is a wiring bug: the
// derived value will silently go stale when that store changes.
//
// compute must be a pure function of the declared dependencies. It must not
// write to stores or create new ones.
//
// Derive panics on construction misuse: nil scope, nil compute, an empty
// dependency list, a nil dependency, or a dependency owned by another
// scope. Dependencies always exist before their dependents, so cycles
// cannot be declared.
func Derive[T any](sc *Scope, compute func() T, deps []Dependency, opts ...StoreOption[T]) *Derived[T] {
	if sc == nil {
		panic(errs.Usage("state.Derive", "nil scope"))
	}
	if compute == nil {
		panic(errs.Usage("state.Derive", "nil compute function"))
	}
	if len(deps) == 0 {
		panic(errs.Usage("state.Derive", "derived store declares no dependencies"))
	}
	depIDs := make([]int, len(deps))
	for i, dep := range deps {
		if dep == nil {
			panic(errs.Usage("state.Derive", "nil dependency"))
		}
		if dep.nodeScope() != sc {
			panic(errs.Usage("state.Derive", "dependency belongs to a different scope"))
		}
		depIDs[i] = dep.nodeID()
	}

	var cfg storeConfig[T]
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	d := &Derived[T]{
		sc:        sc,
		compute:   compute,
		equals:    cfg.equals,
		listeners: make(map[int]func(T)),
	}
	d.id = sc.register(d, depIDs, func() {
		d.value = compute()
	})
	return d
}

// Read returns the memoized value.
func (d *Derived[T]) Read() T {
	d.valMu.RLock()
	defer d.valMu.RUnlock()
	return d.value
}

// Subscribe registers fn and invokes it immediately with the current value,
// then once per propagation pass in which the derived value changed.
func (d *Derived[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		panic(errs.Usage("state.Derived.Subscribe", "nil subscriber"))
	}
	d.lisMu.Lock()
	id := d.nextLis
	d.nextLis++
	d.listeners[id] = fn
	d.lisMu.Unlock()

	fn(d.Read())

	return func() {
		d.lisMu.Lock()
		delete(d.listeners, id)
		d.lisMu.Unlock()
	}
}

func (d *Derived[T]) nodeID() int       { return d.id }
func (d *Derived[T]) nodeScope() *Scope { return d.sc }

func (d *Derived[T]) recompute() bool {
	next := d.compute()
	d.valMu.Lock()
	defer d.valMu.Unlock()
	if d.equals != nil && d.equals(d.value, next) {
		return false
	}
	d.value = next
	return true
}

func (d *Derived[T]) pendingNotifications() []func() {
	v := d.Read()
	return snapshotListeners(&d.lisMu, d.listeners, v)
}

// ReadOnly wraps a store so callers cannot recover the writable type with
// an assertion. The wrapper remains usable as a dependency.
func ReadOnly[T any](s Readable[T]) Readable[T] {
	if s == nil {
		panic(errs.Usage("state.ReadOnly", "nil store"))
	}
	return readOnly[T]{inner: s}
}

type readOnly[T any] struct {
	inner Readable[T]
}

func (r readOnly[T]) Read() T                     { return r.inner.Read() }
func (r readOnly[T]) Subscribe(fn func(T)) func() { return r.inner.Subscribe(fn) }
func (r readOnly[T]) nodeID() int                 { return r.inner.nodeID() }
func (r readOnly[T]) nodeScope() *Scope           { return r.inner.nodeScope() }
