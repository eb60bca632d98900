package sqlite

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"todostream/internal/core/domain"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/internal/core/telemetry"
	"todostream/pkg/metrics"
)

const backendName = "sqlite"

// Config carries the backend's collaborators. Path and MigrationsPath are
// required; everything else has a working default.
type Config struct {
	Path           string
	MigrationsPath string
	Logger         zerolog.Logger
	Telemetry      port.Telemetry
	Metrics        *metrics.AppMetrics
}

func (c Config) normalize() Config {
	if c.Telemetry == nil {
		c.Telemetry = telemetry.NewNoOpProbe()
	}
	return c
}

// Storage implements port.TodoStorage over a sqlite database file.
type Storage struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  zerolog.Logger
	probe   port.Telemetry
	metrics *metrics.AppMetrics
}

var _ port.TodoStorage = (*Storage)(nil)

// Open migrates the schema and returns a ready backend.
func Open(cfg Config) (*Storage, error) {
	cfg = cfg.normalize()
	if cfg.Path == "" {
		return nil, errs.New("sqlite.Open", errs.CodeInvalid, errs.WithMessage("database path required"))
	}
	if cfg.MigrationsPath == "" {
		return nil, errs.New("sqlite.Open", errs.CodeInvalid, errs.WithMessage("migrations path required"))
	}

	logger := cfg.Logger.With().Str("component", "storage").Str("backend", backendName).Logger()
	db, err := openDB(cfg.Path, cfg.MigrationsPath, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("path", cfg.Path).Msg("sqlite storage opened")
	return &Storage{
		db:      db,
		builder: newQueryBuilder(),
		logger:  logger,
		probe:   cfg.Telemetry,
		metrics: cfg.Metrics,
	}, nil
}

// GetAll returns the full collection in insertion order. Rows that fail to
// decode or validate fail the whole read.
func (s *Storage) GetAll(ctx context.Context) ([]domain.Todo, error) {
	ctx, span := s.probe.StartStorageSpan(ctx, "get_all", backendName, nil)
	defer span.End()
	start := time.Now()

	query, args, err := s.builder.
		Select("id", "title", "description", "completed", "created_at", "updated_at").
		From("todos").
		OrderBy("rowid ASC").
		ToSql()
	if err != nil {
		return nil, s.fail(ctx, span, "sqlite.GetAll", "get_all", start, "build query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(ctx, span, "sqlite.GetAll", "get_all", start, "query todos", err)
	}
	defer rows.Close()

	var todos []domain.Todo
	for rows.Next() {
		var t domain.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus("error", "row scan failed")
			s.record(ctx, "get_all", start, err)
			return nil, errs.New("sqlite.GetAll", errs.CodeCorruptRecord,
				errs.WithMessage("row does not decode into a todo"),
				errs.WithCause(err))
		}
		if err := t.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus("error", "row validation failed")
			s.record(ctx, "get_all", start, err)
			return nil, errs.New("sqlite.GetAll", errs.CodeCorruptRecord,
				errs.WithMessage("row failed validation"),
				errs.WithField("todo_id", t.ID),
				errs.WithCause(err))
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, span, "sqlite.GetAll", "get_all", start, "iterate rows", err)
	}

	span.SetAttributes(map[string]interface{}{"rows": len(todos)})
	span.SetStatus("ok", "")
	s.record(ctx, "get_all", start, nil)
	return todos, nil
}

// Save upserts by ID. The insert position (and thus collection order) is
// fixed at first insert; replacing a row keeps its place.
func (s *Storage) Save(ctx context.Context, todo domain.Todo) error {
	ctx, span := s.probe.StartStorageSpan(ctx, "save", backendName, map[string]interface{}{
		"todo_id": todo.ID,
	})
	defer span.End()
	start := time.Now()

	query, args, err := s.builder.
		Insert("todos").
		Columns("id", "title", "description", "completed", "created_at", "updated_at").
		Values(todo.ID, todo.Title, todo.Description, todo.Completed, todo.CreatedAt.UTC(), todo.UpdatedAt.UTC()).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			completed = excluded.completed,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return s.fail(ctx, span, "sqlite.Save", "save", start, "build upsert", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.fail(ctx, span, "sqlite.Save", "save", start, "upsert todo", err)
	}

	span.SetStatus("ok", "")
	s.record(ctx, "save", start, nil)
	return nil
}

// Delete removes by ID. Zero affected rows is a successful no-op.
func (s *Storage) Delete(ctx context.Context, id string) error {
	ctx, span := s.probe.StartStorageSpan(ctx, "delete", backendName, map[string]interface{}{
		"todo_id": id,
	})
	defer span.End()
	start := time.Now()

	query, args, err := s.builder.Delete("todos").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return s.fail(ctx, span, "sqlite.Delete", "delete", start, "build delete", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.fail(ctx, span, "sqlite.Delete", "delete", start, "delete todo", err)
	}
	if affected, err := result.RowsAffected(); err == nil {
		span.SetAttributes(map[string]interface{}{"rows_affected": affected})
	}

	span.SetStatus("ok", "")
	s.record(ctx, "delete", start, nil)
	return nil
}

func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.New("sqlite.Close", errs.CodeStorage, errs.WithCause(err))
	}
	s.logger.Debug().Msg("sqlite storage closed")
	return nil
}

func (s *Storage) fail(ctx context.Context, span port.Span, op, metric string, start time.Time, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus("error", msg)
	s.record(ctx, metric, start, err)
	s.logger.Error().Err(err).Str("op", op).Msg(msg)
	return errs.New(op, errs.CodeStorage, errs.WithMessage(msg), errs.WithCause(err))
}

func (s *Storage) record(ctx context.Context, operation string, start time.Time, err error) {
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordStorageOperation(ctx, operation, backendName, elapsed, err)
	}
	s.probe.RecordStorageOperation(ctx, operation, backendName, elapsed, err)
}
