// Package store holds the application-facing stores: the todo list fed by
// the repository stream, and the derived views over it.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/internal/core/state"
	"todostream/internal/core/telemetry"
	"todostream/pkg/metrics"
)

// TodoList bridges the repository stream into a reactive store. The store
// value only ever changes through stream emissions: mutations round-trip
// through storage first, so the in-memory list never runs ahead of the
// backend.
type TodoList struct {
	repo    port.TodoRepository
	logger  zerolog.Logger
	probe   port.Telemetry
	metrics *metrics.AppMetrics
	clock   func() time.Time
	newID   func() string

	list *state.Store[state.Async[[]domain.Todo]]

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Config carries the store's collaborators. Repository and Scope are
// required.
type Config struct {
	Repository port.TodoRepository
	Scope      *state.Scope
	Logger     zerolog.Logger
	Telemetry  port.Telemetry
	Metrics    *metrics.AppMetrics
	Clock      func() time.Time
	NewID      func() string
}

func (c Config) normalize() Config {
	if c.Telemetry == nil {
		c.Telemetry = telemetry.NewNoOpProbe()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// NewTodoList subscribes to the repository and returns a store that is
// already populated: the stream's immediate snapshot is consumed before the
// constructor returns, so Read never reports loading in a wired container.
func NewTodoList(ctx context.Context, cfg Config) (*TodoList, error) {
	cfg = cfg.normalize()
	if cfg.Repository == nil {
		return nil, errs.New("store.NewTodoList", errs.CodeInvalid, errs.WithMessage("repository required"))
	}
	if cfg.Scope == nil {
		return nil, errs.New("store.NewTodoList", errs.CodeInvalid, errs.WithMessage("scope required"))
	}

	bctx, cancel := context.WithCancel(context.Background())
	ch, err := cfg.Repository.Watch(bctx)
	if err != nil {
		cancel()
		return nil, err
	}

	tl := &TodoList{
		repo:    cfg.Repository,
		logger:  cfg.Logger.With().Str("component", "todo_list").Logger(),
		probe:   cfg.Telemetry,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		newID:   cfg.NewID,
		list:    state.NewStore(cfg.Scope, state.AsyncLoading[[]domain.Todo]()),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// The subscribe-time snapshot is already buffered; consume it here so
	// construction hands back a ready store.
	select {
	case snap, ok := <-ch:
		if ok {
			tl.apply(ctx, snap)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	go tl.bridge(bctx, ch)
	return tl, nil
}

func (tl *TodoList) bridge(bctx context.Context, ch <-chan []domain.Todo) {
	defer close(tl.done)
	for {
		select {
		case <-bctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				if bctx.Err() == nil {
					// The repository died underneath us; readers must not
					// mistake the last snapshot for current state.
					tl.list.Write(state.AsyncFailed[[]domain.Todo](
						errs.New("store.todo_list", errs.CodeUnavailable,
							errs.WithMessage("repository stream closed"))))
				}
				return
			}
			tl.apply(bctx, snap)
		}
	}
}

func (tl *TodoList) apply(ctx context.Context, snap []domain.Todo) {
	tl.list.Write(state.AsyncReady(snap))
	if tl.metrics != nil {
		tl.metrics.RecordStoreNotification(ctx, "todo_list")
	}
	tl.logger.Trace().Int("todos", len(snap)).Msg("snapshot applied")
}

// Snapshot exposes the list as a read-only store for derivation and
// subscription.
func (tl *TodoList) Snapshot() state.Readable[state.Async[[]domain.Todo]] {
	return state.ReadOnly[state.Async[[]domain.Todo]](tl.list)
}

// Todos returns the current collection, or nil before the first emission.
func (tl *TodoList) Todos() []domain.Todo {
	return tl.list.Read().OrZero()
}

// Find scans the current collection by ID.
func (tl *TodoList) Find(id string) (domain.Todo, bool) {
	for _, t := range tl.Todos() {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Todo{}, false
}

// Add creates a fresh uncompleted todo and persists it. The new value
// appears in the store via the re-emission, not through a local write.
func (tl *TodoList) Add(ctx context.Context, description string) (domain.Todo, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.Todo{}, errs.New("store.TodoList.Add", errs.CodeInvalid,
			errs.WithMessage("empty description"))
	}

	ctx, span := tl.probe.StartStoreSpan(ctx, "todo_list", "add", nil)
	defer span.End()

	todo := domain.NewTodo(tl.newID(), description, tl.clock())
	if err := tl.repo.Save(ctx, todo); err != nil {
		span.RecordError(err)
		return domain.Todo{}, err
	}
	span.SetAttributes(map[string]interface{}{"todo_id": todo.ID})
	tl.logger.Debug().Str("todo_id", todo.ID).Msg("todo added")
	return todo, nil
}

// Toggle flips completion for the given ID. An ID not present in the
// current collection is a silent no-op.
func (tl *TodoList) Toggle(ctx context.Context, id string) error {
	todo, ok := tl.Find(id)
	if !ok {
		tl.logger.Debug().Str("todo_id", id).Msg("toggle skipped; id not present")
		return nil
	}

	ctx, span := tl.probe.StartStoreSpan(ctx, "todo_list", "toggle", map[string]interface{}{
		"todo_id": id,
	})
	defer span.End()

	if err := tl.repo.Save(ctx, todo.Toggled(tl.clock())); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Edit replaces the text of the given ID. An ID not present in the current
// collection is a silent no-op.
func (tl *TodoList) Edit(ctx context.Context, id, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return errs.New("store.TodoList.Edit", errs.CodeInvalid,
			errs.WithMessage("empty description"))
	}
	todo, ok := tl.Find(id)
	if !ok {
		tl.logger.Debug().Str("todo_id", id).Msg("edit skipped; id not present")
		return nil
	}

	ctx, span := tl.probe.StartStoreSpan(ctx, "todo_list", "edit", map[string]interface{}{
		"todo_id": id,
	})
	defer span.End()

	if err := tl.repo.Save(ctx, todo.Edited(description, tl.clock())); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Remove deletes the todo from storage. Removing an already-absent todo
// succeeds.
func (tl *TodoList) Remove(ctx context.Context, todo domain.Todo) error {
	if todo.ID == "" {
		return errs.New("store.TodoList.Remove", errs.CodeInvalid,
			errs.WithMessage("todo without id"))
	}

	ctx, span := tl.probe.StartStoreSpan(ctx, "todo_list", "remove", map[string]interface{}{
		"todo_id": todo.ID,
	})
	defer span.End()

	if err := tl.repo.Delete(ctx, todo.ID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ClearCompleted removes every completed todo.
func (tl *TodoList) ClearCompleted(ctx context.Context) (int, error) {
	return tl.repo.ClearCompleted(ctx)
}

// Close stops the bridge goroutine. The repository and scope stay up; their
// owners close them.
func (tl *TodoList) Close() {
	tl.closeOnce.Do(func() {
		tl.cancel()
		<-tl.done
	})
}
