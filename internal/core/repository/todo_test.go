package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todostream/internal/adapter/storage/memory"
	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/pkg/test/factory"
)

// flakyStorage injects failures around a real backend.
type flakyStorage struct {
	port.TodoStorage
	saveErr   error
	deleteErr error
	getAllErr error
}

func (f *flakyStorage) Save(ctx context.Context, todo domain.Todo) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.TodoStorage.Save(ctx, todo)
}

func (f *flakyStorage) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.TodoStorage.Delete(ctx, id)
}

func (f *flakyStorage) GetAll(ctx context.Context) ([]domain.Todo, error) {
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}
	return f.TodoStorage.GetAll(ctx)
}

func newTestRepo(t *testing.T, seed ...domain.Todo) *TodoRepository {
	t.Helper()
	storage := memory.New(zerolog.Nop())
	t.Cleanup(func() { _ = storage.Close() })
	for _, todo := range seed {
		require.NoError(t, storage.Save(context.Background(), todo))
	}

	repo, err := New(context.Background(), Config{Storage: storage, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func receiveSnap(t *testing.T, ch <-chan []domain.Todo) []domain.Todo {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed while waiting for a snapshot")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func requireNoSnap(t *testing.T, ch <-chan []domain.Todo) {
	t.Helper()
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot: %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireClosed(t *testing.T, ch <-chan []domain.Todo) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
			// drain snapshots queued before the close
		case <-deadline:
			t.Fatal("channel never closed")
		}
	}
}

func ids(todos []domain.Todo) []string {
	out := make([]string, 0, len(todos))
	for _, t := range todos {
		out = append(out, t.ID)
	}
	return out
}

func TestNew_RequiresStorage(t *testing.T) {
	_, err := New(context.Background(), Config{})

	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
}

func TestNew_FailsWhenInitialLoadFails(t *testing.T) {
	boom := errs.New("stub.GetAll", errs.CodeStorage, errs.WithMessage("disk on fire"))
	storage := &flakyStorage{TodoStorage: memory.New(zerolog.Nop()), getAllErr: boom}

	_, err := New(context.Background(), Config{Storage: storage, Logger: zerolog.Nop()})

	require.Error(t, err)
	assert.Equal(t, errs.CodeStorage, errs.CodeOf(err))
}

func TestWatch_DeliversCurrentSnapshotImmediately(t *testing.T) {
	seed := factory.NewTodos(2)
	repo := newTestRepo(t, seed...)

	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)

	snap := receiveSnap(t, ch)
	assert.Equal(t, ids(seed), ids(snap))
}

func TestWatch_ReEmitsAfterSave(t *testing.T) {
	repo := newTestRepo(t)
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, receiveSnap(t, ch))

	todo := factory.NewTodo()
	require.NoError(t, repo.Save(context.Background(), todo))

	snap := receiveSnap(t, ch)
	require.Len(t, snap, 1)
	assert.Equal(t, todo.ID, snap[0].ID)
}

func TestWatch_ReEmitsAfterDelete(t *testing.T) {
	seed := factory.NewTodos(2)
	repo := newTestRepo(t, seed...)
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	require.NoError(t, repo.Delete(context.Background(), seed[0].ID))

	snap := receiveSnap(t, ch)
	assert.Equal(t, []string{seed[1].ID}, ids(snap))
}

func TestDelete_AbsentIsNoOpButStillBroadcasts(t *testing.T) {
	repo := newTestRepo(t, factory.NewTodo())
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	require.NoError(t, repo.Delete(context.Background(), "no-such-id"))

	assert.Len(t, receiveSnap(t, ch), 1)
}

func TestDelete_EmptyIDRejected(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Delete(context.Background(), "")

	assert.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
}

func TestSave_InvalidTodoRejectedWithoutEmission(t *testing.T) {
	repo := newTestRepo(t)
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	err = repo.Save(context.Background(), domain.Todo{Title: "no id"})

	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalid, errs.CodeOf(err))
	requireNoSnap(t, ch)
}

func TestSave_BackendFailurePropagatesWithoutEmission(t *testing.T) {
	boom := errs.New("stub.Save", errs.CodeStorage, errs.WithMessage("write refused"))
	flaky := &flakyStorage{TodoStorage: memory.New(zerolog.Nop()), saveErr: boom}
	repo, err := New(context.Background(), Config{Storage: flaky, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	err = repo.Save(context.Background(), factory.NewTodo())

	assert.Equal(t, errs.CodeStorage, errs.CodeOf(err))
	requireNoSnap(t, ch)
}

func TestSave_ReloadFailureSuppressesEmission(t *testing.T) {
	flaky := &flakyStorage{TodoStorage: memory.New(zerolog.Nop())}
	repo, err := New(context.Background(), Config{Storage: flaky, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	flaky.getAllErr = errs.New("stub.GetAll", errs.CodeStorage, errs.WithMessage("read refused"))
	err = repo.Save(context.Background(), factory.NewTodo())

	assert.Equal(t, errs.CodeStorage, errs.CodeOf(err))
	requireNoSnap(t, ch)
}

func TestWatch_SlowWatcherKeepsLatestSnapshot(t *testing.T) {
	storage := memory.New(zerolog.Nop())
	t.Cleanup(func() { _ = storage.Close() })
	repo, err := New(context.Background(), Config{
		Storage:    storage,
		Logger:     zerolog.Nop(),
		BufferSize: 1,
	})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	// never consumed until the end: every emission evicts the previous one

	first := factory.NewTodo()
	second := factory.NewTodo()
	require.NoError(t, repo.Save(context.Background(), first))
	require.NoError(t, repo.Save(context.Background(), second))

	snap := receiveSnap(t, ch)
	assert.Equal(t, []string{first.ID, second.ID}, ids(snap))
	requireNoSnap(t, ch)
}

func TestWatch_DeliveredSnapshotsAreClones(t *testing.T) {
	repo := newTestRepo(t, factory.NewTodo(map[string]any{"Title": "original"}))
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)

	snap := receiveSnap(t, ch)
	snap[0].Title = "defaced"

	again, err := repo.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Title)
}

func TestWatch_ContextCancelClosesChannel(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := repo.Watch(ctx)
	require.NoError(t, err)
	receiveSnap(t, ch)

	cancel()

	requireClosed(t, ch)
	// the repository keeps running for everyone else
	require.NoError(t, repo.Save(context.Background(), factory.NewTodo()))
}

func TestWatch_MultipleWatchersAllReceive(t *testing.T) {
	repo := newTestRepo(t)
	first, err := repo.Watch(context.Background())
	require.NoError(t, err)
	second, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, first)
	receiveSnap(t, second)

	todo := factory.NewTodo()
	require.NoError(t, repo.Save(context.Background(), todo))

	assert.Equal(t, []string{todo.ID}, ids(receiveSnap(t, first)))
	assert.Equal(t, []string{todo.ID}, ids(receiveSnap(t, second)))
}

func TestClearCompleted_RemovesExactlyTheCompletedSubset(t *testing.T) {
	activeOne := factory.NewTodo()
	doneOne := factory.NewTodo(map[string]any{"Completed": true})
	activeTwo := factory.NewTodo()
	doneTwo := factory.NewTodo(map[string]any{"Completed": true})
	repo := newTestRepo(t, activeOne, doneOne, activeTwo, doneTwo)

	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	removed, err := repo.ClearCompleted(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	snap := receiveSnap(t, ch)
	assert.Equal(t, []string{activeOne.ID, activeTwo.ID}, ids(snap))
	requireNoSnap(t, ch)
}

func TestClearCompleted_NothingToClear(t *testing.T) {
	repo := newTestRepo(t, factory.NewTodo())

	removed, err := repo.ClearCompleted(context.Background())

	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSnapshot_ReadsBackendDirectly(t *testing.T) {
	storage := memory.New(zerolog.Nop())
	t.Cleanup(func() { _ = storage.Close() })
	repo, err := New(context.Background(), Config{Storage: storage, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	// written behind the repository's back
	sneaky := factory.NewTodo()
	require.NoError(t, storage.Save(context.Background(), sneaky))

	snap, err := repo.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{sneaky.ID}, ids(snap))
}

func TestClose_DisconnectsWatchersAndRejectsEverything(t *testing.T) {
	repo := newTestRepo(t)
	ch, err := repo.Watch(context.Background())
	require.NoError(t, err)
	receiveSnap(t, ch)

	repo.Close()
	repo.Close() // idempotent

	requireClosed(t, ch)

	_, err = repo.Watch(context.Background())
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(repo.Save(context.Background(), factory.NewTodo())))
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(repo.Delete(context.Background(), "id")))
	_, err = repo.Snapshot(context.Background())
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
	_, err = repo.ClearCompleted(context.Background())
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
}
