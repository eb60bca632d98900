// Package jsonfile provides a single-file storage backend: the whole
// collection lives in one human-readable JSON document. Portable, diffable,
// and good enough for a local list of tens of items.
package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
)

// record is the file representation of a todo. Kept separate from the
// domain type so the persistence format does not drift with entity changes.
type record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRecord(t domain.Todo) record {
	return record{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func (r record) toDomain() (domain.Todo, error) {
	t := domain.Todo{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := t.Validate(); err != nil {
		return domain.Todo{}, err
	}
	return t, nil
}

// Storage implements port.TodoStorage over one JSON document.
type Storage struct {
	path   string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

var _ port.TodoStorage = (*Storage)(nil)

// New returns a backend writing to path. The file is created lazily on the
// first save; a missing file reads as an empty collection.
func New(path string, logger zerolog.Logger) (*Storage, error) {
	if path == "" {
		return nil, errs.New("jsonfile.New", errs.CodeInvalid, errs.WithMessage("data file path required"))
	}
	return &Storage{
		path:   path,
		logger: logger.With().Str("component", "storage").Str("backend", "jsonfile").Logger(),
	}, nil
}

// GetAll returns every record in file order. A document that fails to decode
// or a record that fails validation fails the whole read.
func (s *Storage) GetAll(ctx context.Context) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(ctx, "jsonfile.GetAll"); err != nil {
		return nil, err
	}
	return s.load()
}

// Save upserts by ID: replaced records keep their position in the document,
// new ones append.
func (s *Storage) Save(ctx context.Context, todo domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(ctx, "jsonfile.Save"); err != nil {
		return err
	}

	todos, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, t := range todos {
		if t.ID == todo.ID {
			todos[i] = todo
			replaced = true
			break
		}
	}
	if !replaced {
		todos = append(todos, todo)
	}
	return s.store(todos)
}

// Delete removes by ID. An absent ID leaves the file untouched.
func (s *Storage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard(ctx, "jsonfile.Delete"); err != nil {
		return err
	}

	todos, err := s.load()
	if err != nil {
		return err
	}

	kept := todos[:0]
	for _, t := range todos {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(todos) {
		return nil
	}
	return s.store(kept)
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.logger.Debug().Msg("jsonfile storage closed")
	}
	return nil
}

func (s *Storage) guard(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.New(op, errs.CodeStorage, errs.WithCause(err))
	}
	if s.closed {
		return errs.New(op, errs.CodeUnavailable, errs.WithMessage("storage closed"))
	}
	return nil
}

func (s *Storage) load() ([]domain.Todo, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New("jsonfile.load", errs.CodeStorage,
			errs.WithMessage("read data file"),
			errs.WithField("path", s.path),
			errs.WithCause(err))
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errs.New("jsonfile.load", errs.CodeCorruptRecord,
			errs.WithMessage("data file does not decode"),
			errs.WithField("path", s.path),
			errs.WithCause(err))
	}

	todos := make([]domain.Todo, 0, len(records))
	for _, r := range records {
		t, err := r.toDomain()
		if err != nil {
			return nil, errs.New("jsonfile.load", errs.CodeCorruptRecord,
				errs.WithMessage("record failed validation"),
				errs.WithField("todo_id", r.ID),
				errs.WithCause(err))
		}
		todos = append(todos, t)
	}
	return todos, nil
}

// store writes the whole collection through a temp file and rename, so a
// crash mid-write never leaves a truncated document behind.
func (s *Storage) store(todos []domain.Todo) error {
	records := make([]record, 0, len(todos))
	for _, t := range todos {
		records = append(records, toRecord(t))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("encode collection"),
			errs.WithCause(err))
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".todos-*.json")
	if err != nil {
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("create temp file"),
			errs.WithField("dir", dir),
			errs.WithCause(err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("write temp file"),
			errs.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("close temp file"),
			errs.WithCause(err))
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("set file mode"),
			errs.WithCause(err))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errs.New("jsonfile.store", errs.CodeStorage,
			errs.WithMessage("replace data file"),
			errs.WithField("path", s.path),
			errs.WithCause(err))
	}
	return nil
}
