// Package app assembles the process: a storage backend selected by config,
// the repository streaming over it, one reactive scope, and the stores.
// The container owns the pieces and closes them in reverse build order.
package app

import (
	"context"

	"github.com/rs/zerolog"

	"todostream/internal/adapter/storage/jsonfile"
	"todostream/internal/adapter/storage/memory"
	"todostream/internal/adapter/storage/sqlite"
	"todostream/internal/core/errs"
	"todostream/internal/core/port"
	"todostream/internal/core/repository"
	"todostream/internal/core/state"
	"todostream/internal/core/store"
	"todostream/pkg/config"
	"todostream/pkg/metrics"
)

// Container holds the wired application graph.
type Container struct {
	Storage    port.TodoStorage
	Repository *repository.TodoRepository
	Scope      *state.Scope
	TodoList   *store.TodoList
	Views      *store.Views

	logger zerolog.Logger
}

// Options carries the optional observability collaborators. Zero values mean
// no tracing and no metrics, which is how tests and the default binary run.
type Options struct {
	Telemetry port.Telemetry
	Metrics   *metrics.AppMetrics
}

// NewContainer builds the full graph. A failure at any stage tears down what
// was already built, so callers never hold a half-wired container.
func NewContainer(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Container, error) {
	storage, err := openStorage(cfg.Storage, logger, opts)
	if err != nil {
		return nil, err
	}

	repo, err := repository.New(ctx, repository.Config{
		Storage:       storage,
		Logger:        logger,
		Telemetry:     opts.Telemetry,
		Metrics:       opts.Metrics,
		BufferSize:    cfg.Stream.BufferSize,
		FanoutWorkers: cfg.Stream.FanoutWorkers,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	scope := state.NewScope()

	todoList, err := store.NewTodoList(ctx, store.Config{
		Repository: repo,
		Scope:      scope,
		Logger:     logger,
		Telemetry:  opts.Telemetry,
		Metrics:    opts.Metrics,
	})
	if err != nil {
		repo.Close()
		_ = storage.Close()
		return nil, err
	}

	views, err := store.NewViews(scope, todoList)
	if err != nil {
		todoList.Close()
		repo.Close()
		_ = storage.Close()
		return nil, err
	}

	logger.Info().Str("backend", cfg.Storage.Backend).Msg("container ready")
	return &Container{
		Storage:    storage,
		Repository: repo,
		Scope:      scope,
		TodoList:   todoList,
		Views:      views,
		logger:     logger.With().Str("component", "container").Logger(),
	}, nil
}

func openStorage(cfg config.StorageConfig, logger zerolog.Logger, opts Options) (port.TodoStorage, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.Open(sqlite.Config{
			Path:           cfg.DBPath,
			MigrationsPath: cfg.MigrationsPath,
			Logger:         logger,
			Telemetry:      opts.Telemetry,
			Metrics:        opts.Metrics,
		})
	case config.BackendMemory:
		return memory.New(logger), nil
	case config.BackendJSONFile:
		return jsonfile.New(cfg.DataFile, logger)
	default:
		return nil, errs.New("app.NewContainer", errs.CodeConfig,
			errs.WithMessage("unknown storage backend"),
			errs.WithField("backend", cfg.Backend))
	}
}

// Close tears down in reverse build order: stores stop consuming, the
// repository disconnects its watchers, then the backend closes.
func (c *Container) Close() error {
	c.TodoList.Close()
	c.Repository.Close()
	err := c.Storage.Close()
	c.logger.Debug().Msg("container closed")
	return err
}
