package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package globals
var migrateMu sync.Mutex

// Migrate applies every pending migration for the dialect.
func Migrate(db *sql.DB, dialect Dialect, logger logrus.FieldLogger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger(logger))

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations/"+string(dialect)); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(db *sql.DB, dialect Dialect) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}

func gooseLogger(logger logrus.FieldLogger) goose.Logger {
	if l, ok := logger.(goose.Logger); ok {
		return l
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	return quiet
}
