// Package state implements the reactive core: writable stores, derived
// values with explicit dependencies, and a scope that propagates changes
// through the graph.
//
// Every store belongs to a Scope. Writes are applied in propagation passes:
// a pass swaps the new root values, recomputes each affected derived store
// at most once, and only then notifies subscribers. Values observed from
// inside a notification are therefore always mutually consistent.
//
// Writes issued while a pass is running, including writes made by
// subscribers during notification, are queued and folded into the same
// flush. A flush that keeps producing new writes beyond the scope's pass
// limit is a wiring bug and panics.
package state

import (
	"sort"
	"sync"

	"todostream/internal/core/errs"
)

const defaultMaxPasses = 100

// flowNode is the scope's view of a store, writable or derived.
type flowNode interface {
	// recompute reruns a derived computation and reports whether the
	// memoized value changed. Writable stores never recompute.
	recompute() bool
	// pendingNotifications snapshots the node's subscribers bound to its
	// current value. The returned closures run outside all scope locks.
	pendingNotifications() []func()
}

// writeOp applies one queued write and reports the target node and whether
// the value actually changed.
type writeOp func() (id int, changed bool)

// Scope owns a dependency graph of stores and serializes all change
// propagation through it. A zero Scope is not usable; call NewScope.
//
// Stores from different scopes cannot depend on each other.
type Scope struct {
	qmu      sync.Mutex // guards queue and flushing
	queue    []writeOp
	flushing bool

	gmu        sync.Mutex // guards graph topology
	nodes      []flowNode
	depsOf     [][]int
	dependents [][]int

	maxPasses int
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithMaxPasses bounds how many propagation passes a single flush may run
// before the scope treats the graph as non-settling and panics. The default
// is generous; lower it in tests that provoke feedback loops.
func WithMaxPasses(n int) ScopeOption {
	return func(sc *Scope) {
		if n > 0 {
			sc.maxPasses = n
		}
	}
}

// NewScope creates an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	sc := &Scope{maxPasses: defaultMaxPasses}
	for _, opt := range opts {
		if opt != nil {
			opt(sc)
		}
	}
	return sc
}

// register adds a node to the graph and wires its dependency edges.
// The initial derived computation runs inside the graph lock so that
// construction cannot interleave with a running pass.
func (sc *Scope) register(n flowNode, depIDs []int, initial func()) int {
	sc.gmu.Lock()
	defer sc.gmu.Unlock()

	id := len(sc.nodes)
	sc.nodes = append(sc.nodes, n)
	sc.depsOf = append(sc.depsOf, depIDs)
	sc.dependents = append(sc.dependents, nil)
	for _, dep := range depIDs {
		sc.dependents[dep] = append(sc.dependents[dep], id)
	}
	if initial != nil {
		initial()
	}
	return id
}

// submit queues a write and, unless a flush is already active, runs the
// flush to completion. When another goroutine or a notification callback
// holds the flush, the write folds into that flush's next pass.
func (sc *Scope) submit(op writeOp) {
	sc.qmu.Lock()
	sc.queue = append(sc.queue, op)
	if sc.flushing {
		sc.qmu.Unlock()
		return
	}
	sc.flushing = true
	sc.qmu.Unlock()
	sc.flush()
}

func (sc *Scope) flush() {
	passes := 0
	for {
		sc.qmu.Lock()
		if len(sc.queue) == 0 {
			sc.flushing = false
			sc.qmu.Unlock()
			return
		}
		batch := sc.queue
		sc.queue = nil
		sc.qmu.Unlock()

		passes++
		if passes > sc.maxPasses {
			sc.qmu.Lock()
			sc.flushing = false
			sc.queue = nil
			sc.qmu.Unlock()
			panic(errs.Usage("state.flush",
				"propagation did not settle: a subscriber keeps writing on every pass"))
		}

		changed := make(map[int]bool)
		for _, op := range batch {
			if id, ok := op(); ok {
				changed[id] = true
			}
		}

		notes := sc.propagate(changed)
		for _, fn := range notes {
			fn()
		}
	}
}

// propagate recomputes every derived node reachable from the changed set
// and returns the subscriber notifications for all nodes whose value
// changed this pass. Node ids grow in creation order and dependencies must
// exist before their dependents, so ascending id order is topological.
func (sc *Scope) propagate(changed map[int]bool) []func() {
	sc.gmu.Lock()
	defer sc.gmu.Unlock()

	affected := make(map[int]bool)
	var order []int
	var visit func(int)
	visit = func(id int) {
		for _, dep := range sc.dependents[id] {
			if !affected[dep] {
				affected[dep] = true
				order = append(order, dep)
				visit(dep)
			}
		}
	}
	for id := range changed {
		visit(id)
	}
	sort.Ints(order)

	for _, id := range order {
		if !sc.anyDepChanged(id, changed) {
			continue
		}
		if sc.nodes[id].recompute() {
			changed[id] = true
		}
	}

	changedIDs := make([]int, 0, len(changed))
	for id := range changed {
		changedIDs = append(changedIDs, id)
	}
	sort.Ints(changedIDs)

	var notes []func()
	for _, id := range changedIDs {
		notes = append(notes, sc.nodes[id].pendingNotifications()...)
	}
	return notes
}

// anyDepChanged reports whether one of the node's direct dependencies
// changed during this pass. A derived store whose dependencies all settled
// back to equal values is skipped entirely.
func (sc *Scope) anyDepChanged(id int, changed map[int]bool) bool {
	for _, dep := range sc.depsOf[id] {
		if changed[dep] {
			return true
		}
	}
	return false
}
