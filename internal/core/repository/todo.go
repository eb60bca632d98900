// Package repository turns a storage backend into a live stream of
// collection snapshots. Watchers receive the current snapshot on subscribe
// and a fresh one after every successful mutation, so their view converges
// on backend state within one emission.
package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	concpool "github.com/sourcegraph/conc/pool"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/internal/core/telemetry"
	"todostream/pkg/metrics"
)

const (
	defaultBufferSize    = 8
	defaultFanoutWorkers = 4
)

// Config carries the repository's collaborators. Storage is required;
// everything else has a working default.
type Config struct {
	Storage       port.TodoStorage
	Logger        zerolog.Logger
	Telemetry     port.Telemetry
	Metrics       *metrics.AppMetrics
	BufferSize    int
	FanoutWorkers int
}

func (c Config) normalize() Config {
	if c.Telemetry == nil {
		c.Telemetry = telemetry.NewNoOpProbe()
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = defaultFanoutWorkers
	}
	return c
}

// TodoRepository implements port.TodoRepository over a single storage
// backend. Mutations are serialized so snapshots broadcast in issue order.
type TodoRepository struct {
	storage port.TodoStorage
	logger  zerolog.Logger
	probe   port.Telemetry
	metrics *metrics.AppMetrics

	ctx    context.Context
	cancel context.CancelFunc

	// writeMu serializes mutate-reload-broadcast cycles.
	writeMu sync.Mutex

	mu       sync.RWMutex
	watchers map[uint64]*watcher
	nextID   uint64

	snapMu   sync.RWMutex
	snapshot []domain.Todo

	bufferSize    int
	fanoutWorkers int
	shutdownOnce  sync.Once
	closed        atomic.Bool
}

var _ port.TodoRepository = (*TodoRepository)(nil)

type watcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // guards ch sends against close
	ch     chan []domain.Todo
	closed bool
	once   sync.Once
}

// New reads the initial collection from storage and starts the repository.
// A backend failure here is a constructor error: starting with an unknown
// collection would hand every watcher a lie.
func New(ctx context.Context, cfg Config) (*TodoRepository, error) {
	cfg = cfg.normalize()
	if cfg.Storage == nil {
		return nil, errs.New("repository.New", errs.CodeInvalid, errs.WithMessage("storage backend required"))
	}

	initial, err := cfg.Storage.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(context.Background())
	r := &TodoRepository{
		storage:       cfg.Storage,
		logger:        cfg.Logger.With().Str("component", "repository").Logger(),
		probe:         cfg.Telemetry,
		metrics:       cfg.Metrics,
		ctx:           rctx,
		cancel:        cancel,
		watchers:      make(map[uint64]*watcher),
		snapshot:      initial,
		bufferSize:    cfg.BufferSize,
		fanoutWorkers: cfg.FanoutWorkers,
	}
	r.logger.Debug().Int("todos", len(initial)).Msg("repository started")
	return r, nil
}

// Watch registers a watcher and delivers the current snapshot immediately.
// The channel closes when ctx is cancelled or the repository closes. Slow
// watchers lose intermediate snapshots, never the latest one.
func (r *TodoRepository) Watch(ctx context.Context) (<-chan []domain.Todo, error) {
	if r.closed.Load() {
		return nil, errs.New("repository.Watch", errs.CodeUnavailable, errs.WithMessage("repository closed"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	wctx, cancel := context.WithCancel(ctx)

	w := &watcher{
		ctx:    wctx,
		cancel: cancel,
		ch:     make(chan []domain.Todo, r.bufferSize),
	}
	id := atomic.AddUint64(&r.nextID, 1)

	r.mu.Lock()
	r.watchers[id] = w
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementWatchers(ctx)
	}

	w.send(r.currentSnapshot(), nil)
	go r.observe(id, w)
	return w.ch, nil
}

// Snapshot reads the backend once, bypassing the cached collection.
func (r *TodoRepository) Snapshot(ctx context.Context) ([]domain.Todo, error) {
	if r.closed.Load() {
		return nil, errs.New("repository.Snapshot", errs.CodeUnavailable, errs.WithMessage("repository closed"))
	}
	return r.storage.GetAll(ctx)
}

// Save validates and upserts the todo, then reloads and broadcasts the
// collection. Backend failures propagate unchanged and nothing is emitted.
func (r *TodoRepository) Save(ctx context.Context, todo domain.Todo) error {
	if r.closed.Load() {
		return errs.New("repository.Save", errs.CodeUnavailable, errs.WithMessage("repository closed"))
	}
	if err := todo.Validate(); err != nil {
		return errs.New("repository.Save", errs.CodeInvalid,
			errs.WithMessage("todo failed validation"),
			errs.WithField("todo_id", todo.ID),
			errs.WithCause(err))
	}

	ctx, span := r.probe.StartStoreSpan(ctx, "repository", "save", map[string]interface{}{
		"todo_id": todo.ID,
	})
	defer span.End()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	if err := r.storage.Save(ctx, todo); err != nil {
		span.RecordError(err)
		span.SetStatus("error", "save failed")
		r.recordMutation(ctx, "save", start, err)
		return err
	}
	r.recordMutation(ctx, "save", start, nil)
	return r.reloadAndBroadcast(ctx)
}

// Delete removes by ID and re-emits. Deleting an absent ID succeeds and
// still re-emits: the mutation completed, the collection just kept its
// shape.
func (r *TodoRepository) Delete(ctx context.Context, id string) error {
	if r.closed.Load() {
		return errs.New("repository.Delete", errs.CodeUnavailable, errs.WithMessage("repository closed"))
	}
	if id == "" {
		return errs.New("repository.Delete", errs.CodeInvalid, errs.WithMessage("empty todo id"))
	}

	ctx, span := r.probe.StartStoreSpan(ctx, "repository", "delete", map[string]interface{}{
		"todo_id": id,
	})
	defer span.End()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	if err := r.storage.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus("error", "delete failed")
		r.recordMutation(ctx, "delete", start, err)
		return err
	}
	r.recordMutation(ctx, "delete", start, nil)
	return r.reloadAndBroadcast(ctx)
}

// ClearCompleted deletes every completed todo and broadcasts once. On a
// partial failure the collection still re-emits, so watchers track whatever
// the backend now holds; the first error is returned alongside the count
// of todos actually removed.
func (r *TodoRepository) ClearCompleted(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, errs.New("repository.ClearCompleted", errs.CodeUnavailable, errs.WithMessage("repository closed"))
	}

	ctx, span := r.probe.StartStoreSpan(ctx, "repository", "clear_completed", nil)
	defer span.End()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	start := time.Now()
	todos, err := r.storage.GetAll(ctx)
	if err != nil {
		span.RecordError(err)
		r.recordMutation(ctx, "clear_completed", start, err)
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, t := range todos {
		if !t.Completed {
			continue
		}
		if err := r.storage.Delete(ctx, t.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	r.recordMutation(ctx, "clear_completed", start, firstErr)

	if removed > 0 || firstErr == nil {
		if err := r.reloadAndBroadcast(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus("error", "clear completed incomplete")
	}
	return removed, firstErr
}

// Close shuts down the stream machinery and disconnects every watcher. The
// storage backend stays open; its owner closes it.
func (r *TodoRepository) Close() {
	r.shutdownOnce.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.mu.Lock()
		for id, w := range r.watchers {
			w.close()
			delete(r.watchers, id)
		}
		r.mu.Unlock()
		r.logger.Debug().Msg("repository closed")
	})
}

func (r *TodoRepository) currentSnapshot() []domain.Todo {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return domain.CloneTodos(r.snapshot)
}

// reloadAndBroadcast runs with writeMu held. A reload failure after a
// successful mutation surfaces to the caller and suppresses the emission:
// watchers keep the last collection actually read from the backend.
func (r *TodoRepository) reloadAndBroadcast(ctx context.Context) error {
	todos, err := r.storage.GetAll(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reload after mutation failed")
		return err
	}

	r.snapMu.Lock()
	r.snapshot = todos
	r.snapMu.Unlock()

	remaining := len(domain.FilterActive.Apply(todos))
	if r.metrics != nil {
		r.metrics.RecordSnapshot(ctx, len(todos), remaining)
	}
	r.probe.RecordStoreEvent(ctx, "repository", "snapshot", map[string]interface{}{
		"todos":     len(todos),
		"remaining": remaining,
	})

	r.broadcast(ctx, todos)
	return nil
}

func (r *TodoRepository) broadcast(ctx context.Context, snap []domain.Todo) {
	r.mu.RLock()
	targets := make([]*watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		targets = append(targets, w)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	p := concpool.New().WithMaxGoroutines(r.fanoutWorkers)
	for _, w := range targets {
		w := w
		clone := domain.CloneTodos(snap)
		p.Go(func() {
			if dropped := w.send(clone, r.ctx); dropped && r.metrics != nil {
				r.metrics.RecordSnapshotDropped(ctx)
				r.logger.Warn().Msg("watcher buffer full; dropped oldest snapshot")
			}
		})
	}
	p.Wait()
}

func (r *TodoRepository) recordMutation(ctx context.Context, op string, start time.Time, err error) {
	if r.metrics != nil {
		r.metrics.RecordTodoOperation(ctx, op)
	}
	r.probe.RecordStorageOperation(ctx, op, "repository", time.Since(start), err)
	if err != nil {
		r.probe.RecordError(ctx, "repository."+op, err, nil)
	}
}

func (r *TodoRepository) observe(id uint64, w *watcher) {
	select {
	case <-w.ctx.Done():
	case <-r.ctx.Done():
	}
	r.mu.Lock()
	if stored, ok := r.watchers[id]; ok && stored == w {
		delete(r.watchers, id)
	}
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.DecrementWatchers(context.Background())
	}
	w.close()
}

// send queues the snapshot without blocking, evicting the oldest queued
// snapshot when the buffer is full. It reports whether an eviction
// happened. Sends and close are serialized on w.mu, so a watcher being
// torn down is skipped instead of panicking the broadcaster.
func (w *watcher) send(snap []domain.Todo, repoCtx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.ctx.Err() != nil {
		return false
	}
	if repoCtx != nil && repoCtx.Err() != nil {
		return false
	}
	select {
	case w.ch <- snap:
		return false
	default:
	}
	dropped := false
	select {
	case <-w.ch:
		dropped = true
	default:
	}
	select {
	case w.ch <- snap:
	default:
	}
	return dropped
}

func (w *watcher) close() {
	w.once.Do(func() {
		w.cancel()
		w.mu.Lock()
		w.closed = true
		close(w.ch)
		w.mu.Unlock()
	})
}
