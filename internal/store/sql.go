package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/blinktext/internal/config"
	"github.com/blinktext/internal/models"
)

// DB is the SQL-backed store shared by the text and user repositories.
type DB struct {
	db      *sql.DB
	dialect Dialect
	texts   *TextStore
	users   *UserStore
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*DB, error) {
	var (
		dialect Dialect
		dsn     string
	)

	switch cfg.Database.Type {
	case "postgres":
		dialect = Postgres
		dsn = cfg.GetDSN()
	case "sqlite":
		dialect = SQLite
		path := cfg.Database.SQLite.Path
		if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(path)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// a single writer avoids SQLITE_BUSY under concurrent view increments
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(sqlDB, dialect, logger); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return New(sqlDB, dialect), nil
}

// New wraps an already migrated connection.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		db:      db,
		dialect: dialect,
		texts:   &TextStore{db: db, dialect: dialect},
		users:   &UserStore{db: db, dialect: dialect},
	}
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func (d *DB) Texts() *TextStore {
	return d.texts
}

func (d *DB) Users() *UserStore {
	return d.users
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Ping checks database connectivity for the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ models.TextRepository = (*TextStore)(nil)
var _ models.UserRepository = (*UserStore)(nil)
