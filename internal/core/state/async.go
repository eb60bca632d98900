package state

// Async wraps a value that arrives from outside the graph: absent until the
// first delivery, then the latest value or the latest failure. It replaces
// ad-hoc "nil means not loaded yet" conventions at store boundaries.
type Async[T any] struct {
	ready bool
	value T
	err   error
}

// AsyncLoading returns the absent state.
func AsyncLoading[T any]() Async[T] {
	return Async[T]{}
}

// AsyncReady wraps a delivered value.
func AsyncReady[T any](v T) Async[T] {
	return Async[T]{ready: true, value: v}
}

// AsyncFailed wraps a delivery failure. The previous value, if any, is
// dropped: consumers see the failure, not stale data presented as current.
func AsyncFailed[T any](err error) Async[T] {
	return Async[T]{err: err}
}

// Loading reports that nothing has been delivered yet.
func (a Async[T]) Loading() bool {
	return !a.ready && a.err == nil
}

// Ready reports that a value is present.
func (a Async[T]) Ready() bool {
	return a.ready
}

// Get returns the value and whether one is present.
func (a Async[T]) Get() (T, bool) {
	return a.value, a.ready
}

// OrZero returns the value, or the zero value while loading or failed.
func (a Async[T]) OrZero() T {
	return a.value
}

// Err returns the delivery failure, if any.
func (a Async[T]) Err() error {
	return a.err
}
