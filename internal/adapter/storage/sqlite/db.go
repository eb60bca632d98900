// Package sqlite provides the durable local storage backend: a single
// sqlite database file, schema-managed by golang-migrate, with statement
// logging and tracing on every query.
package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"

	"todostream/internal/core/errs"
)

const connMaxLifetime = 5 * time.Minute

// openDB migrates the schema and returns an instrumented connection pool:
// otelsql traces every statement, sqldb-logger mirrors them into the zerolog
// stream.
func openDB(path, migrationsPath string, logger zerolog.Logger) (*sql.DB, error) {
	// Migrations run on a plain throwaway connection; the instrumented pool
	// opens only once the schema is current.
	migrationDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.New("sqlite.openDB", errs.CodeStorage,
			errs.WithMessage("open database for migration"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}
	if err := RunMigrations(migrationDB, migrationsPath); err != nil {
		migrationDB.Close()
		return nil, err
	}
	if err := migrationDB.Close(); err != nil {
		return nil, errs.New("sqlite.openDB", errs.CodeStorage,
			errs.WithMessage("close migration connection"),
			errs.WithCause(err))
	}

	traced, err := otelsql.Open("sqlite3", path,
		otelsql.WithDBSystem("sqlite"),
		otelsql.WithDBName("todostream"),
	)
	if err != nil {
		return nil, errs.New("sqlite.openDB", errs.CodeStorage,
			errs.WithMessage("open traced database"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}

	db := sqldblogger.OpenDriver(path, traced.Driver(), zerologadapter.New(logger))

	// One connection, always. sqlite serializes writers anyway, and a second
	// pooled connection to a ":memory:" database would see an empty schema.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.New("sqlite.openDB", errs.CodeStorage,
			errs.WithMessage("ping database"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}
	return db, nil
}

// RunMigrations applies every pending migration from migrationsPath. An
// already-current schema is not an error.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return errs.New("sqlite.RunMigrations", errs.CodeStorage,
			errs.WithMessage("create migration driver"),
			errs.WithCause(err))
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "sqlite3", driver)
	if err != nil {
		return errs.New("sqlite.RunMigrations", errs.CodeStorage,
			errs.WithMessage("create migration instance"),
			errs.WithField("migrations", migrationsPath),
			errs.WithCause(err))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errs.New("sqlite.RunMigrations", errs.CodeStorage,
			errs.WithMessage("apply migrations"),
			errs.WithField("migrations", migrationsPath),
			errs.WithCause(err))
	}
	return nil
}

func newQueryBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}
