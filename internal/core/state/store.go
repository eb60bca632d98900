package state

import (
	"sort"
	"sync"

	"todostream/internal/core/errs"
)

// Dependency is the handle a derived computation declares. Only stores and
// derived values implement it; the methods are unexported so the graph
// cannot be extended from outside the package.
type Dependency interface {
	nodeID() int
	nodeScope() *Scope
}

// Readable is the read side of a store: current value, subscription, and
// use as a dependency. Both writable and derived stores satisfy it.
type Readable[T any] interface {
	Dependency
	Read() T
	Subscribe(fn func(T)) (unsubscribe func())
}

// StoreOption configures a store or derived value at construction.
type StoreOption[T any] func(*storeConfig[T])

type storeConfig[T any] struct {
	equals func(a, b T) bool
}

// WithEqual installs a value-equality check. Writes and recomputations that
// produce an equal value are dropped before propagation: dependents do not
// recompute and subscribers are not notified. Without it every write counts
// as a change.
func WithEqual[T any](eq func(a, b T) bool) StoreOption[T] {
	return func(c *storeConfig[T]) {
		c.equals = eq
	}
}

// Store is a writable root store. Create one with NewStore; the zero value
// is not usable.
type Store[T any] struct {
	sc *Scope
	id int

	valMu  sync.RWMutex
	value  T
	equals func(a, b T) bool

	lisMu     sync.Mutex
	listeners map[int]func(T)
	nextLis   int
}

// NewStore creates a writable store holding initial.
func NewStore[T any](sc *Scope, initial T, opts ...StoreOption[T]) *Store[T] {
	if sc == nil {
		panic(errs.Usage("state.NewStore", "nil scope"))
	}
	var cfg storeConfig[T]
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	s := &Store[T]{
		sc:        sc,
		value:     initial,
		equals:    cfg.equals,
		listeners: make(map[int]func(T)),
	}
	s.id = sc.register(s, nil, nil)
	return s
}

// Read returns the current value.
func (s *Store[T]) Read() T {
	s.valMu.RLock()
	defer s.valMu.RUnlock()
	return s.value
}

// Write replaces the value and propagates the change through the scope.
// When called outside any propagation pass the full flush, including
// subscriber notification, completes before Write returns. When called
// during a pass (from a subscriber, or concurrently from another
// goroutine) the write folds into the active flush.
func (s *Store[T]) Write(v T) {
	s.sc.submit(func() (int, bool) {
		s.valMu.Lock()
		defer s.valMu.Unlock()
		if s.equals != nil && s.equals(s.value, v) {
			return s.id, false
		}
		s.value = v
		return s.id, true
	})
}

// Update applies fn to the current value and writes the result. The read
// and the write are not atomic against concurrent writers; the scope's
// queue still serializes the resulting propagation.
func (s *Store[T]) Update(fn func(T) T) {
	if fn == nil {
		panic(errs.Usage("state.Store.Update", "nil update function"))
	}
	s.Write(fn(s.Read()))
}

// Subscribe registers fn and invokes it immediately with the current value.
// Afterwards fn runs once per propagation pass in which the value changed.
// The returned function cancels the subscription; a notification already
// snapshotted by a running pass may still be delivered after cancellation.
func (s *Store[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		panic(errs.Usage("state.Store.Subscribe", "nil subscriber"))
	}
	s.lisMu.Lock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = fn
	s.lisMu.Unlock()

	fn(s.Read())

	return func() {
		s.lisMu.Lock()
		delete(s.listeners, id)
		s.lisMu.Unlock()
	}
}

func (s *Store[T]) nodeID() int       { return s.id }
func (s *Store[T]) nodeScope() *Scope { return s.sc }
func (s *Store[T]) recompute() bool   { return false }

func (s *Store[T]) pendingNotifications() []func() {
	v := s.Read()
	return snapshotListeners(&s.lisMu, s.listeners, v)
}

// snapshotListeners binds the current subscriber set to a value, in
// registration order, producing closures safe to run outside all locks.
func snapshotListeners[T any](mu *sync.Mutex, listeners map[int]func(T), v T) []func() {
	mu.Lock()
	defer mu.Unlock()
	if len(listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(listeners))
	for id := range listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(), 0, len(ids))
	for _, id := range ids {
		fn := listeners[id]
		out = append(out, func() { fn(v) })
	}
	return out
}
