// Package memory provides an ephemeral storage backend. It is the default
// for tests and demos: same contract as the durable backends, nothing
// survives the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
)

type Storage struct {
	logger zerolog.Logger
	cache  *cache.Cache

	mu      sync.Mutex
	seq     map[string]uint64
	nextSeq uint64
	closed  bool
}

var _ port.TodoStorage = (*Storage)(nil)

func New(logger zerolog.Logger) *Storage {
	return &Storage{
		logger: logger.With().Str("component", "storage").Str("backend", "memory").Logger(),
		cache:  cache.New(cache.NoExpiration, 0),
		seq:    make(map[string]uint64),
	}
}

// GetAll returns every record in insertion order. A cache entry that is not
// a valid todo fails the whole read: partial collections are worse than
// loud errors.
func (s *Storage) GetAll(ctx context.Context) ([]domain.Todo, error) {
	if err := s.guard(ctx, "memory.GetAll"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	todos := make([]domain.Todo, 0, s.cache.ItemCount())
	for key, item := range s.cache.Items() {
		todo, ok := item.Object.(domain.Todo)
		if !ok {
			return nil, errs.New("memory.GetAll", errs.CodeCorruptRecord,
				errs.WithMessage("cache entry is not a todo"),
				errs.WithField("todo_id", key))
		}
		if err := todo.Validate(); err != nil {
			return nil, errs.New("memory.GetAll", errs.CodeCorruptRecord,
				errs.WithMessage("todo failed validation"),
				errs.WithField("todo_id", key),
				errs.WithCause(err))
		}
		todos = append(todos, todo)
	}

	sort.Slice(todos, func(i, j int) bool {
		return s.seq[todos[i].ID] < s.seq[todos[j].ID]
	})
	return todos, nil
}

func (s *Storage) Save(ctx context.Context, todo domain.Todo) error {
	if err := s.guard(ctx, "memory.Save"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.seq[todo.ID]; !known {
		s.nextSeq++
		s.seq[todo.ID] = s.nextSeq
	}
	s.cache.Set(todo.ID, todo, cache.NoExpiration)
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if err := s.guard(ctx, "memory.Delete"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(id)
	delete(s.seq, id)
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.cache.Flush()
		s.seq = make(map[string]uint64)
		s.logger.Debug().Msg("memory storage closed")
	}
	return nil
}

func (s *Storage) guard(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.New(op, errs.CodeStorage, errs.WithCause(err))
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errs.New(op, errs.CodeUnavailable, errs.WithMessage("storage closed"))
	}
	return nil
}
