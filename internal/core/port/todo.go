package port

import (
	"context"

	"todostream/internal/core/domain"
)

// TodoStorage is the contract every storage backend fulfills. Backends are
// local and dumb: they persist whole records and report failures, nothing
// more. Decoded records are validated before they leave the adapter, so a
// corrupt row surfaces as an error instead of a partial todo.
type TodoStorage interface {
	// GetAll returns the full collection in creation order.
	GetAll(ctx context.Context) ([]domain.Todo, error)
	// Save upserts by ID: insert when absent, replace when present.
	Save(ctx context.Context, todo domain.Todo) error
	// Delete removes by ID. Deleting an absent ID is a successful no-op.
	Delete(ctx context.Context, id string) error
	Close() error
}

// TodoRepository exposes the collection as a live stream of snapshots plus
// the mutations that advance it. Every successful mutation re-reads the
// backend and re-emits, so watchers converge on storage within one emission.
type TodoRepository interface {
	// Watch delivers the current snapshot immediately, then a fresh one
	// after every successful mutation. The channel closes when ctx is
	// cancelled or the repository shuts down.
	Watch(ctx context.Context) (<-chan []domain.Todo, error)
	// Snapshot reads the backend once, bypassing the stream.
	Snapshot(ctx context.Context) ([]domain.Todo, error)
	Save(ctx context.Context, todo domain.Todo) error
	Delete(ctx context.Context, id string) error
	// ClearCompleted removes every completed todo and reports how many.
	ClearCompleted(ctx context.Context) (int, error)
	Close()
}
